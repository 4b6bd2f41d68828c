// Package policy holds the role based authorization table. A Policy is
// loaded once at start and shared read-only by every workflow.
package policy

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/marketplace-service/internal/domain"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

// Operation names a guarded workflow operation.
type Operation string

const (
	UserMe              Operation = "user.me"
	UserUpdateSelf      Operation = "user.update_self"
	UserListFreelancers Operation = "user.list_freelancers"
	UserGetProfile      Operation = "user.get_profile"
	UserBan             Operation = "user.ban"
	UserDelete          Operation = "user.delete"

	RequestCreate       Operation = "request.create"
	RequestCancel       Operation = "request.cancel"
	RequestRespond      Operation = "request.respond"
	RequestListSent     Operation = "request.list_sent"
	RequestListReceived Operation = "request.list_received"

	TicketCreate       Operation = "ticket.create"
	TicketUpdate       Operation = "ticket.update"
	TicketUpdateStatus Operation = "ticket.update_status"
	TicketAdminRespond Operation = "ticket.admin_respond"
	TicketGet          Operation = "ticket.get"
	TicketList         Operation = "ticket.list"

	ChatOpen     Operation = "chat.open"
	ChatList     Operation = "chat.list"
	ChatSend     Operation = "chat.send"
	ChatRead     Operation = "chat.read"
	ChatMarkSeen Operation = "chat.mark_seen"

	AuditList Operation = "audit.list"
)

// Operations lists every operation the table must cover.
var Operations = []Operation{
	UserMe, UserUpdateSelf, UserListFreelancers, UserGetProfile, UserBan, UserDelete,
	RequestCreate, RequestCancel, RequestRespond, RequestListSent, RequestListReceived,
	TicketCreate, TicketUpdate, TicketUpdateStatus, TicketAdminRespond, TicketGet, TicketList,
	ChatOpen, ChatList, ChatSend, ChatRead, ChatMarkSeen,
	AuditList,
}

//go:embed default_policy.yaml
var defaultPolicy []byte

type fileFormat struct {
	Operations map[string][]string `yaml:"operations"`
}

// Policy maps operations to permitted roles. The zero value denies everything.
type Policy struct {
	grants map[Operation]map[domain.Role]struct{}
}

// Default returns the built-in table.
func Default() (*Policy, error) {
	return Parse(defaultPolicy)
}

// Load reads the table from path, or the built-in table when path is empty.
func Load(path string) (*Policy, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML table. Unknown operations or roles and missing
// operations are rejected so a typo cannot silently open or close access.
func Parse(data []byte) (*Policy, error) {
	var raw fileFormat
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}

	known := make(map[Operation]struct{}, len(Operations))
	for _, op := range Operations {
		known[op] = struct{}{}
	}

	grants := make(map[Operation]map[domain.Role]struct{}, len(raw.Operations))
	for name, roles := range raw.Operations {
		op := Operation(name)
		if _, ok := known[op]; !ok {
			return nil, fmt.Errorf("policy: unknown operation %q", name)
		}
		set := make(map[domain.Role]struct{}, len(roles))
		for _, r := range roles {
			role := domain.Role(r)
			if !role.Valid() {
				return nil, fmt.Errorf("policy: operation %q: unknown role %q", name, r)
			}
			set[role] = struct{}{}
		}
		grants[op] = set
	}

	var missing []string
	for _, op := range Operations {
		if _, ok := grants[op]; !ok {
			missing = append(missing, string(op))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("policy: operations without a rule: %v", missing)
	}

	return &Policy{grants: grants}, nil
}

// Authorize reports whether role may invoke op.
func (p *Policy) Authorize(op Operation, role domain.Role) bool {
	if p == nil {
		return false
	}
	_, ok := p.grants[op][role]
	return ok
}

// Require returns a Forbidden error unless the actor's role may invoke op.
func (p *Policy) Require(op Operation, actor domain.Actor) error {
	if !p.Authorize(op, actor.Role) {
		return apperrors.NewForbidden(fmt.Sprintf("role %s may not perform %s", actor.Role, op))
	}
	return nil
}

// Roles returns the roles granted op, sorted.
func (p *Policy) Roles(op Operation) []domain.Role {
	if p == nil {
		return nil
	}
	out := make([]domain.Role, 0, len(p.grants[op]))
	for r := range p.grants[op] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
