package enums

// MemberRole is the site-level role carried in access tokens. Admins may
// drive any order through the lifecycle; members only see their own.
type MemberRole string

const (
	MemberRoleMember MemberRole = "member"
	MemberRoleAdmin  MemberRole = "admin"
)

func (m MemberRole) IsValid() bool {
	return m == MemberRoleMember || m == MemberRoleAdmin
}
