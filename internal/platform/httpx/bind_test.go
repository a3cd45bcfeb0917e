package httpx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger-core/internal/shared"
)

type sampleRequest struct {
	Code string `json:"code" validate:"required,max=8"`
}

func TestBindValidatesTags(t *testing.T) {
	var body sampleRequest
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":""}`))
	err := Bind(req, &body)
	require.ErrorIs(t, err, shared.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"1100"}`))
	require.NoError(t, Bind(req, &body))
	require.Equal(t, "1100", body.Code)
}

func TestRespondErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
		title  string
	}{
		{shared.Validation("bad"), http.StatusBadRequest, "Validation Failed"},
		{shared.NotFound("missing"), http.StatusNotFound, "Not Found"},
		{shared.Conflict("dup"), http.StatusConflict, "Conflict"},
		{shared.AlreadyProcessed("again"), http.StatusConflict, "Already Processed"},
		{shared.Forbidden("no"), http.StatusForbidden, "Forbidden"},
		{errors.New("boom"), http.StatusInternalServerError, "Internal Error"},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code)
		require.Contains(t, rr.Body.String(), tc.title)
	}
}
