package cms

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cms-analytics-server/internal/domain"
)

func TestParseCSV(t *testing.T) {
	input := strings.Join([]string{
		"Rndrng_NPI,Rndrng_Prvdr_State_Abrvtn,HCPCS_Cd,Avg_Mdcr_Pymt_Amt,Year",
		"1003000126,CA,99213,125.50,2022",
		"1003000298,NY,99214,189.00,2022",
	}, "\n")

	records, err := ParseCSV(strings.NewReader(input), domain.UTILIZATION)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, domain.UTILIZATION, records[0].Source)
	assert.Equal(t, "1003000126", records[0].Fields["Rndrng_NPI"])
	assert.Equal(t, "125.50", records[0].Fields["Avg_Mdcr_Pymt_Amt"])
	assert.Equal(t, "NY", records[1].Fields["Rndrng_Prvdr_State_Abrvtn"])
}

func TestParseCSV_RaggedRows(t *testing.T) {
	// A short row keeps its leading columns; the missing trailing columns are
	// simply absent from the field map.
	input := strings.Join([]string{
		"Rndrng_NPI,HCPCS_Cd,Avg_Mdcr_Pymt_Amt",
		"1003000126,99213",
	}, "\n")

	records, err := ParseCSV(strings.NewReader(input), domain.UTILIZATION)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "99213", records[0].Fields["HCPCS_Cd"])
	_, ok := records[0].Fields["Avg_Mdcr_Pymt_Amt"]
	assert.False(t, ok)
}

func TestParseCSV_Empty(t *testing.T) {
	_, err := ParseCSV(strings.NewReader(""), domain.UTILIZATION)
	assert.Error(t, err)
}

func TestParseCSV_HeaderOnly(t *testing.T) {
	records, err := ParseCSV(strings.NewReader("Rndrng_NPI,HCPCS_Cd\n"), domain.UTILIZATION)
	require.NoError(t, err)
	assert.Empty(t, records)
}
