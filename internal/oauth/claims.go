package oauth

// publicCluster is the shared cluster every authenticated user may see.
const publicCluster = "sliderule"

// Quota levels by organization standing. Non-members get no compute.
const (
	ownerMaxNodes  = 15
	ownerTTLHours  = 12
	memberMaxNodes = 7
	memberTTLHours = 8
)

// Claims is the authorization claim set derived from a resolved identity.
// It is built once per login and never mutated.
type Claims struct {
	Username        string
	IsOrgMember     bool
	IsOrgOwner      bool
	Teams           []string
	OrgRoles        []string
	TeamRoles       map[string][]string
	AllowedClusters []string
	MaxNodes        int
	ClusterTTLHours int
}

// BuildClaims derives the claim set for a user. It is deterministic: no
// clock, no randomness, no network.
func BuildClaims(username string, membership Membership) Claims {
	claims := Claims{
		Username:    username,
		IsOrgMember: membership.IsMember,
		IsOrgOwner:  membership.IsOwner,
		Teams:       []string{},
		OrgRoles:    []string{},
		TeamRoles:   map[string][]string{},
	}

	switch {
	case membership.IsOwner:
		claims.OrgRoles = []string{"owner", "member"}
		claims.MaxNodes = ownerMaxNodes
		claims.ClusterTTLHours = ownerTTLHours
	case membership.IsMember:
		claims.OrgRoles = []string{"member"}
		claims.MaxNodes = memberMaxNodes
		claims.ClusterTTLHours = memberTTLHours
	}

	claims.AllowedClusters = []string{publicCluster}
	if membership.IsMember {
		claims.AllowedClusters = append(claims.AllowedClusters, username+"-cluster")
	}

	// Teams double as cluster names, in discovery order.
	for _, team := range membership.Teams {
		claims.Teams = append(claims.Teams, team.Slug)
		claims.TeamRoles[team.Slug+"-roles"] = []string{team.Role}
		claims.AllowedClusters = append(claims.AllowedClusters, team.Slug)
	}

	return claims
}
