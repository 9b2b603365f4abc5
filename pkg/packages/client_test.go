package packages

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/dankinder/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func pathPrefix(prefix string) interface{} {
	return mock.MatchedBy(func(path string) bool {
		return strings.HasPrefix(path, prefix)
	})
}

func mockServer() *httpmock.Server {
	downstream := &httpmock.MockHandler{}

	downstream.On("Handle", "GET", pathPrefix("/v1/packages/acme/prod/"), mock.Anything).Return(httpmock.Response{
		Body: []byte(`[
			{
				"slug": "app-abc",
				"status_str": "Completed",
				"downloads": 5,
				"version": "aaa",
				"type_display": "manifest/list",
				"tags": {"version": ["v1"]},
				"files": [{"downloads": 12}]
			},
			{
				"slug": "app-def",
				"status_str": "Quarantined",
				"downloads": 5,
				"version": "bbb",
				"type_display": "image",
				"tags": {}
			}
		]`),
	})

	downstream.On("Handle", "DELETE", "/v1/packages/acme/prod/app-abc/", mock.Anything).Return(httpmock.Response{
		Status: http.StatusNoContent,
	})

	downstream.On("Handle", "DELETE", "/v1/packages/acme/prod/app-gone/", mock.Anything).Return(httpmock.Response{
		Status: http.StatusNotFound,
	})

	return httpmock.NewServer(downstream)
}

func newTestClient(t *testing.T) (*Client, func()) {
	server := mockServer()
	t.Setenv(BaseEnv, server.URL())

	return New(http.DefaultClient, "acme", "prod"), server.Close
}

func TestQuery(t *testing.T) {
	client, shutdown := newTestClient(t)
	defer shutdown()

	result, err := client.Query(context.Background(), "version:aaa")
	require.NoError(t, err)
	require.Len(t, result.Packages, 2)

	assert.Equal(t, "app-abc", result.Packages[0].Slug)
	assert.True(t, result.Packages[0].Tagged())
	assert.False(t, result.Packages[1].Tagged())

	// extraction preserves document order, nested figures included
	assert.Equal(t, []string{"Completed", "Quarantined"}, result.Statuses())
	assert.Equal(t, []int64{5, 12, 5}, result.Downloads())
}

func TestList(t *testing.T) {
	client, shutdown := newTestClient(t)
	defer shutdown()

	records, err := client.List(context.Background(), "app")
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, "manifest/list", records[0].TypeDisplay)
}

func TestDelete(t *testing.T) {
	client, shutdown := newTestClient(t)
	defer shutdown()

	assert.NoError(t, client.Delete(context.Background(), "app-abc"))

	err := client.Delete(context.Background(), "app-gone")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
