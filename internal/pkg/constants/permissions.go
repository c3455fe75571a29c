package constants

const (
	ViewData        = "view_data"
	EditClients     = "edit_clients"
	DeleteClient    = "delete_client"
	ManageTemplates = "manage_templates"
)

// PermissionRoles maps each permission to roles allowed to perform it.
var PermissionRoles = map[string][]string{
	ViewData:        {Member, Admin, Owner},
	EditClients:     {Member, Admin, Owner},
	DeleteClient:    {Admin, Owner},
	ManageTemplates: {Admin, Owner},
}

// AllowedRole returns true if role is in the list of allowed roles for the permission.
func AllowedRole(permission, role string) bool {
	roles, ok := PermissionRoles[permission]
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
