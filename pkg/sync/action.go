package sync

// Action is the disposition the engine assigns to a single pathname after
// comparing its plaintext, encrypted, and snapshot state.
type Action uint8

const (
	// ActionIgnore means the entry is absent from the plaintext tree under
	// the active rule set and nothing should change on either side.
	ActionIgnore Action = iota
	// ActionSame means the plaintext and encrypted sides already agree;
	// no transfer is needed.
	ActionSame
	// ActionEncrypt means the plaintext side should be encrypted to the
	// encrypted side (new or modified file).
	ActionEncrypt
	// ActionDecrypt means the encrypted side should be decrypted to the
	// plaintext side (a file that is new on the encrypted side, or one the
	// encrypted side changed while the plaintext side still matches the
	// snapshot).
	ActionDecrypt
	// ActionRemovePlain means the plaintext entry should be removed
	// (moved to trash) because it was deleted on the encrypted side.
	ActionRemovePlain
	// ActionRemoveEncrypted means the encrypted entry should be removed
	// (moved to trash) because it was deleted on the plaintext side.
	ActionRemoveEncrypted
	// ActionConflict means both sides changed since the last snapshot in
	// incompatible ways and neither can be safely propagated
	// automatically; both versions are preserved, one under a renamed
	// conflict pathname.
	ActionConflict
)

// String renders the action for logging.
func (a Action) String() string {
	switch a {
	case ActionIgnore:
		return "ignore"
	case ActionSame:
		return "same"
	case ActionEncrypt:
		return "encrypt"
	case ActionDecrypt:
		return "decrypt"
	case ActionRemovePlain:
		return "remove-plain"
	case ActionRemoveEncrypted:
		return "remove-encrypted"
	case ActionConflict:
		return "conflict"
	default:
		return "unknown"
	}
}
