package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func paramsFor(t *testing.T, query string) Params {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?"+query, nil)
	return Parse(c)
}

func TestParse(t *testing.T) {
	p := paramsFor(t, "")
	require.Equal(t, DefaultPage, p.Page)
	require.Equal(t, DefaultLimit, p.Limit)
	require.Equal(t, 0, p.Offset)

	p = paramsFor(t, "page=3&limit=20")
	require.Equal(t, 3, p.Page)
	require.Equal(t, 20, p.Limit)
	require.Equal(t, 40, p.Offset)

	p = paramsFor(t, "page=-1&limit=0")
	require.Equal(t, DefaultPage, p.Page)
	require.Equal(t, DefaultLimit, p.Limit)

	p = paramsFor(t, "limit=5000")
	require.Equal(t, MaxLimit, p.Limit)

	p = paramsFor(t, "page=abc&limit=xyz")
	require.Equal(t, DefaultPage, p.Page)
	require.Equal(t, DefaultLimit, p.Limit)
}
