package auction

// Status is where our bidder stands in the auction.
type Status int

const (
	// StatusWatching means we have not bid yet.
	StatusWatching Status = iota
	// StatusPending means our latest bid is sent but not confirmed.
	StatusPending
	StatusLeading
	StatusOutbid
	StatusWon
	StatusLost
	// StatusEnded means the auction closed without us bidding.
	StatusEnded
)

func (s Status) String() string {
	switch s {
	case StatusWatching:
		return "watching"
	case StatusPending:
		return "pending"
	case StatusLeading:
		return "leading"
	case StatusOutbid:
		return "outbid"
	case StatusWon:
		return "won"
	case StatusLost:
		return "lost"
	case StatusEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Final reports whether the auction is over for us.
func (s Status) Final() bool {
	return s == StatusWon || s == StatusLost || s == StatusEnded
}
