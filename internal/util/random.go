package util

import (
	"fmt"

	"github.com/lithammer/shortuuid/v4"
)

const (
	alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
)

// GenerateBidID generates a unique bid identifier in the format "BID-XXXXXXXXXX".
func GenerateBidID() string {
	id := shortuuid.NewWithAlphabet(alphabet)
	return fmt.Sprintf("BID-%s", id[:10])
}
