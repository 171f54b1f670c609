package riot

import "sort"

// League is the master tier leaderboard.
type League struct {
	Tier    string        `json:"tier"`
	Entries []LeagueEntry `json:"entries"`
}

// LeagueEntry is one ranked player.
type LeagueEntry struct {
	SummonerID   string `json:"summonerId"`
	LeaguePoints int    `json:"leaguePoints"`
}

// Summoner is a player's identity record.
type Summoner struct {
	ID    string `json:"id"`
	PUUID string `json:"puuid"`
}

// TopEntries returns up to n entries ordered by league points, highest first.
// Ties keep leaderboard order. The input is not modified.
func TopEntries(entries []LeagueEntry, n int) []LeagueEntry {
	sorted := append([]LeagueEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LeaguePoints > sorted[j].LeaguePoints
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
