package client

import (
	"context"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/openshelf/shelfctl/pkg/library"
)

// dashboardEnvelope carries the raw role-shaped payload. The server
// returns different fields for members and librarians under the same
// key, so the body is decoded in two steps: JSON into a map, then the
// map into the concrete type selected by the caller's role.
type dashboardEnvelope struct {
	Dashboard map[string]any `json:"dashboard"`
}

// Dashboard fetches the dashboard and resolves it into the concrete
// shape for the given role, which must be the role the session held
// when the call was made.
func (c *Client) Dashboard(ctx context.Context, role library.Role) (*library.Dashboard, error) {
	var envelope dashboardEnvelope
	if err := c.getJSON(ctx, "/dashboard", nil, &envelope); err != nil {
		return nil, fmt.Errorf("fetching dashboard: %w", err)
	}

	out := &library.Dashboard{}

	switch role {
	case library.RoleLibrarian:
		var d library.LibrarianDashboard
		if err := decodeDashboard(envelope.Dashboard, &d); err != nil {
			return nil, fmt.Errorf("decoding librarian dashboard: %w", err)
		}

		out.Librarian = &d
	case library.RoleMember:
		var d library.MemberDashboard
		if err := decodeDashboard(envelope.Dashboard, &d); err != nil {
			return nil, fmt.Errorf("decoding member dashboard: %w", err)
		}

		out.Member = &d
	default:
		return nil, fmt.Errorf("cannot resolve dashboard for role %q", role)
	}

	return out, nil
}

// decodeDashboard maps the loose payload into target, converting
// RFC 3339 timestamp strings into time.Time along the way.
func decodeDashboard(payload map[string]any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeHookFunc(time.RFC3339),
		Result:     target,
	})
	if err != nil {
		return fmt.Errorf("building decoder: %w", err)
	}

	return dec.Decode(payload)
}
