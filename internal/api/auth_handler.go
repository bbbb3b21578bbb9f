package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sharding-system/pkg/config"
	"github.com/sharding-system/pkg/security"

	"go.uber.org/zap"
)

// AuthHandler issues admin bearer tokens for the operator credentials
// configured in server.operators. Grounded on the teacher's
// internal/api/auth_handler.go Login flow, narrowed to a static credential
// list since this spec has no user-store/OAuth concept of its own.
type AuthHandler struct {
	authManager *security.AuthManager
	operators   []config.OperatorConfig
	logger      *zap.Logger
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(authManager *security.AuthManager, operators []config.OperatorConfig, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{authManager: authManager, operators: operators, logger: logger}
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token    string   `json:"token"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// IssueToken handles POST /api/v1/auth/token.
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)

	op, ok := h.findOperator(req.Username)
	if !ok || security.VerifyPassword(op.PasswordHash, req.Password) != nil {
		h.logger.Warn("auth_handler: token request denied", zap.String("username", req.Username))
		writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
		return
	}

	token, err := h.authManager.GenerateToken(op.Username, op.Roles)
	if err != nil {
		h.logger.Error("auth_handler: failed to generate token", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token, Username: op.Username, Roles: op.Roles})
}

func (h *AuthHandler) findOperator(username string) (config.OperatorConfig, bool) {
	for _, op := range h.operators {
		if op.Username == username {
			return op, true
		}
	}
	return config.OperatorConfig{}, false
}
