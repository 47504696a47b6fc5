package objstore

// Path conventions shared by every backend. Identity material lives under
// per-identity prefixes; space material under per-space prefixes.

// RootKeyPath is where an identity's encrypted root key blob is stored,
// keyed by both the identity and the wallet that wrapped it.
func RootKeyPath(identityPublicKey, walletAddress string) string {
	return "rootkeys/" + identityPublicKey + "/" + walletAddress
}

// PreKeyDir is the prefix holding all prekey files delegated by an identity.
func PreKeyDir(identityPublicKey string) string {
	return "prekeys/" + identityPublicKey + "/"
}

// PreKeyPath locates a single prekey file under its owner's prefix.
func PreKeyPath(identityPublicKey, prekeyPublicKey string) string {
	return PreKeyDir(identityPublicKey) + prekeyPublicKey
}

// TabOrderPath locates the signed tab-order file for a space.
func TabOrderPath(spaceID string) string {
	return spaceID + "/tabOrder"
}

// TabDir is the prefix holding all tab config files for a space.
func TabDir(spaceID string) string {
	return spaceID + "/tabs/"
}

// TabPath locates a single tab config file.
func TabPath(spaceID, tabName string) string {
	return TabDir(spaceID) + tabName
}
