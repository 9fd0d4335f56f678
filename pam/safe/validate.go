package safe

import "fmt"

// Validate checks if the Safe is semantically correct.
func (s *Safe) Validate() error {
	if !ValidateID(s.ID) {
		return fmt.Errorf("invalid safe ID: must be %d lowercase hex characters", IDLength)
	}
	if s.Name == "" {
		return fmt.Errorf("safe name cannot be empty")
	}
	if len(s.Name) > MaxNameLength {
		return fmt.Errorf("safe name too long: maximum %d characters", MaxNameLength)
	}
	if len(s.ACL) == 0 {
		return fmt.Errorf("safe must have at least one ACL entry")
	}
	for i, entry := range s.ACL {
		if entry.Principal == "" {
			return fmt.Errorf("acl entry at index %d missing principal", i)
		}
		if !entry.Level.IsValid() {
			return fmt.Errorf("acl entry for %q has invalid level %q", entry.Principal, entry.Level)
		}
	}
	if s.CreatedAt.IsZero() {
		return fmt.Errorf("created_at cannot be zero")
	}
	if s.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at cannot be zero")
	}
	return nil
}

// Validate checks if the PrivilegedAccount is semantically correct.
func (a *PrivilegedAccount) Validate() error {
	if !ValidateID(a.ID) {
		return fmt.Errorf("invalid account ID: must be %d lowercase hex characters", IDLength)
	}
	if !ValidateID(a.SafeID) {
		return fmt.Errorf("invalid safe_id: must be %d lowercase hex characters", IDLength)
	}
	if a.Name == "" {
		return fmt.Errorf("account name cannot be empty")
	}
	if !a.Platform.IsValid() {
		return fmt.Errorf("invalid platform %q", a.Platform)
	}
	if a.Address == "" {
		return fmt.Errorf("account address cannot be empty")
	}
	if a.Username == "" {
		return fmt.Errorf("account username cannot be empty")
	}
	if a.TransitKeyName == "" {
		return fmt.Errorf("account transit_key_name cannot be empty")
	}
	if !a.Status.IsValid() {
		return fmt.Errorf("invalid status %q", a.Status)
	}
	if a.RotationInterval < 0 {
		return fmt.Errorf("rotation_interval cannot be negative")
	}
	if a.CreatedAt.IsZero() {
		return fmt.Errorf("created_at cannot be zero")
	}
	if a.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at cannot be zero")
	}
	return nil
}
