package store

import (
	"context"
	"fmt"
)

// AddTrustedDomain inserts a trusted domain.
// Uses ON CONFLICT DO NOTHING for idempotency - re-adding is not an error.
func (s *Store) AddTrustedDomain(ctx context.Context, domain string) error {
	if domain == "" {
		return fmt.Errorf("add trusted domain: empty domain")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trusted_domains (domain)
		VALUES (?)
		ON CONFLICT(domain) DO NOTHING
	`, domain)
	if err != nil {
		return fmt.Errorf("add trusted domain: %w", err)
	}
	return nil
}

// RemoveTrustedDomain deletes a trusted domain.  Removing an absent domain is
// not an error.
func (s *Store) RemoveTrustedDomain(ctx context.Context, domain string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM trusted_domains WHERE domain = ?
	`, domain)
	if err != nil {
		return fmt.Errorf("remove trusted domain: %w", err)
	}
	return nil
}

// IsTrusted reports whether domain is in the trusted set.  The match is exact;
// callers normalize the domain first.
func (s *Store) IsTrusted(ctx context.Context, domain string) (bool, error) {
	var found int
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM trusted_domains WHERE domain = ?)
	`, domain).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("check trusted domain: %w", err)
	}
	return found == 1, nil
}

// TrustedDomains returns every trusted domain in byte order.
// Returns an empty slice (not nil) when nothing is trusted.
func (s *Store) TrustedDomains(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT domain FROM trusted_domains
		ORDER BY domain COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query trusted domains: %w", err)
	}
	defer rows.Close()

	domains := []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan trusted domain: %w", err)
		}
		domains = append(domains, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trusted domains: %w", err)
	}
	return domains, nil
}
