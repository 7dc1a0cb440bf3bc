// Package registration reads the records the product installer writes
// under HKLM: one key per install directory, an optional fallback marker,
// and the certificate allow-list stored below each record.
//
// Record names are HashPath digests, which use BLAKE3. They are not the
// CityHash64 names older installers derive, so a product registered by such
// an installer has no record this worker can find until it is reinstalled
// with a matching installer.
//
// The store is read-only; nothing in the worker writes to the registry.
package registration
