package mainsvc

import "github.com/deltadb/deltadb/internal/dbtypes"

// BootstrapKey seeds an AuthKey at startup, read from an optional on-disk
// config file (see cmd/mainworker's -config flag) rather than created
// through the /api/keys endpoint. Useful for standing up a fresh
// deployment with a known set of non-admin keys without a manual
// first-login step.
type BootstrapKey struct {
	Name        string
	Permissions dbtypes.Permissions
}

// seedBootstrapKeys creates any configured BootstrapKey not already
// present (matched by Name) in the AuthStore. Errors are collected but
// don't stop later keys from being attempted; New then fails with the
// first collected error, so the Main Worker does not start.
func (s *Server) seedBootstrapKeys(keys []BootstrapKey) []error {
	if len(keys) == 0 {
		return nil
	}
	existing := make(map[string]bool)
	for _, k := range s.auth.List() {
		existing[k.Name] = true
	}

	var errs []error
	for _, k := range keys {
		if existing[k.Name] {
			continue
		}
		if _, _, err := s.auth.Create(k.Name, k.Permissions, 0); err != nil {
			errs = append(errs, err)
			continue
		}
		existing[k.Name] = true
	}
	return errs
}
