package authz

import "whatsapp-platform/internal/integration"

// Permission is a single capability flag grantable to a role.
// Keep these stable; they are part of the authorization contract.
type Permission string

const (
	PermSendMessages          Permission = "send_messages"
	PermReceiveMessages       Permission = "receive_messages"
	PermManagePhoneMappings   Permission = "manage_phone_mappings"
	PermViewAllConversations  Permission = "view_all_conversations"
	PermManageTemplates       Permission = "manage_templates"
	PermViewTeamConversations Permission = "view_team_conversations"
	PermManageTeamMappings    Permission = "manage_team_mappings"
)

// capabilities is the static role -> capability table.
// Invariant: owner ⊇ admin ⊇ member. Extend subsets, never reorder semantics.
var capabilities = map[integration.TeamRole][]Permission{
	integration.RoleMember: {
		PermSendMessages,
		PermReceiveMessages,
		PermViewTeamConversations,
	},
	integration.RoleAdmin: {
		PermSendMessages,
		PermReceiveMessages,
		PermViewTeamConversations,
		PermManagePhoneMappings,
		PermManageTemplates,
		PermManageTeamMappings,
	},
	integration.RoleOwner: {
		PermSendMessages,
		PermReceiveMessages,
		PermViewTeamConversations,
		PermManagePhoneMappings,
		PermManageTemplates,
		PermManageTeamMappings,
		PermViewAllConversations,
	},
}

// RolePermissions returns the capability set for a role. Unknown roles get
// an empty set.
func RolePermissions(role integration.TeamRole) []Permission {
	caps := capabilities[role]
	out := make([]Permission, len(caps))
	copy(out, caps)
	return out
}

func roleHas(role integration.TeamRole, p Permission) bool {
	for _, c := range capabilities[role] {
		if c == p {
			return true
		}
	}
	return false
}
