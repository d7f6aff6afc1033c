package response

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/fixrelay/xerrors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func record(fn func(c *gin.Context)) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/fix-json", nil)
	fn(c)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, jsoniter.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestError_FlattensContext(t *testing.T) {
	err := xerrors.Unprocessable("transcode validate failed", errors.New("tag 44: not a decimal")).
		WithContext("stage", "validate").
		WithContext("kind", "TypeMismatch")

	w := record(func(c *gin.Context) { Error(c, err) })
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	body := decode(t, w)
	assert.EqualValues(t, http.StatusUnprocessableEntity, body["code"])
	assert.Equal(t, "transcode validate failed", body["msg"])
	assert.Equal(t, "tag 44: not a decimal", body["detail"])
	assert.Equal(t, "validate", body["stage"])
	assert.Equal(t, "TypeMismatch", body["kind"])
}

func TestError_PlainErrorIs500(t *testing.T) {
	w := record(func(c *gin.Context) { Error(c, errors.New("boom")) })
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "boom", decode(t, w)["msg"])
}

func TestError_NilIsSuccess(t *testing.T) {
	w := record(func(c *gin.Context) { Error(c, nil) })
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["code"])
}

func TestRaw(t *testing.T) {
	w := record(func(c *gin.Context) { Raw(c, "text/plain; charset=utf-8", []byte("8=FIX.4.2|")) })
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "8=FIX.4.2|", w.Body.String())
}

func TestErrorWithStatus(t *testing.T) {
	w := record(func(c *gin.Context) { ErrorWithStatus(c, http.StatusTooManyRequests, "rate limited", "") })
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate limited", decode(t, w)["msg"])
}
