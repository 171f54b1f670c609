package riot

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultHostFormat builds the upstream host for a routing or continental key.
const DefaultHostFormat = "https://%s.api.riotgames.com"

// DefaultMatchIDCount is the number of match ids requested per player.
const DefaultMatchIDCount = 20

// Endpoints builds upstream URLs for one partition.
type Endpoints struct {
	partition Partition
	hostFmt   string
}

// NewEndpoints returns endpoints for p. hostFmt must contain a single %s that
// receives the routing or continental key; an empty value uses
// DefaultHostFormat. Tests point hostFmt at a local server with the key as
// the first path segment or subdomain.
func NewEndpoints(p Partition, hostFmt string) Endpoints {
	if hostFmt == "" {
		hostFmt = DefaultHostFormat
	}
	return Endpoints{partition: p, hostFmt: hostFmt}
}

// Partition returns the partition the endpoints belong to.
func (e Endpoints) Partition() Partition {
	return e.partition
}

func (e Endpoints) platform() string {
	return fmt.Sprintf(e.hostFmt, e.partition.Routing)
}

func (e Endpoints) regional() string {
	return fmt.Sprintf(e.hostFmt, e.partition.Continental)
}

// Leaderboard returns the master tier league URL.
func (e Endpoints) Leaderboard() string {
	return e.platform() + "/tft/league/v1/master"
}

// Summoner returns the identity URL for a summoner id.
func (e Endpoints) Summoner(summonerID string) string {
	return e.platform() + "/tft/summoner/v1/summoners/" + url.PathEscape(summonerID)
}

// MatchIDs returns the match history URL for a player.
func (e Endpoints) MatchIDs(puuid string, count int) string {
	if count <= 0 {
		count = DefaultMatchIDCount
	}
	return fmt.Sprintf("%s/tft/match/v1/matches/by-puuid/%s/ids?count=%d",
		e.regional(), url.PathEscape(puuid), count)
}

// Match returns the match detail URL.
func (e Endpoints) Match(matchID string) string {
	return e.regional() + "/tft/match/v1/matches/" + url.PathEscape(matchID)
}

// IsMatchDetail reports whether u addresses a match detail resource. Match
// details never change once a game has ended.
func IsMatchDetail(u *url.URL) bool {
	const prefix = "/tft/match/v1/matches/"
	i := strings.Index(u.Path, prefix)
	if i < 0 {
		return false
	}
	rest := u.Path[i+len(prefix):]
	return rest != "" && !strings.HasPrefix(rest, "by-puuid/")
}
