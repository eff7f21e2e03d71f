package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "150", FormatMoney(150))
	assert.Equal(t, "1,500", FormatMoney(1500))
	assert.Equal(t, "12,500,000", FormatMoney(12500000))
}

func TestFormatVND(t *testing.T) {
	assert.Equal(t, "999 ₫", FormatVND(999))
	assert.Equal(t, "1.000.000 ₫", FormatVND(1000000))
}

func TestTruncateContent(t *testing.T) {
	assert.Equal(t, "RX-78-2", TruncateContent("RX-78-2", 10))
	assert.Equal(t, "Gundam...", TruncateContent("Gundam Barbatos", 6))
	assert.Equal(t, "Mô hì...", TruncateContent("Mô hình Gundam", 5))
}

func TestGenerateBidID(t *testing.T) {
	a, b := GenerateBidID(), GenerateBidID()
	require.True(t, strings.HasPrefix(a, "BID-"))
	assert.Len(t, a, 14)
	assert.NotEqual(t, a, b)
}

func TestPassword(t *testing.T) {
	hashed, err := HashPassword("12345")
	require.NoError(t, err)

	assert.NoError(t, CheckPassword("12345", hashed))
	assert.Error(t, CheckPassword("54321", hashed))
}
