package liquidator

// StatusCode summarizes the health of a bot deployment or of account
// processing. Codes are ordered: healthy < warning < alert.
type StatusCode string

const (
	StatusHealthy StatusCode = "healthy"
	StatusWarning StatusCode = "warning"
	StatusAlert   StatusCode = "alert"
)

var statusRank = map[StatusCode]int{
	StatusHealthy: 0,
	StatusWarning: 1,
	StatusAlert:   2,
}

// MaxStatusCode combines codes by taking the worst one. An empty or unknown
// code counts as healthy, and no arguments yields healthy.
func MaxStatusCode(codes ...StatusCode) StatusCode {
	out := StatusHealthy
	for _, c := range codes {
		if statusRank[c] > statusRank[out] {
			out = c
		}
	}
	return out
}
