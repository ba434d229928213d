package postgres

import "context"

// Truncate empties the users table between conformance subtests.
func Truncate(ctx context.Context, s *Store) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE users`)
	return err
}
