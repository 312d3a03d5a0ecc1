package auth

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stefanaltmann/markets-api/pkg/response"
)

var (
	ErrInvalidCredentials = errors.New("invalid API credentials")
	ErrTokenGeneration    = errors.New("failed to generate token")
)

// Credentials represents the API authentication credentials
type Credentials struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

// TokenResponse represents the JWT token response
type TokenResponse struct {
	Token      string    `json:"jwt_token"`
	Expiration time.Time `json:"expiration"`
}

// Claims represents the JWT claims structure. The trader code identifies the
// participant behind every order the token holder enters.
type Claims struct {
	jwt.RegisteredClaims
	TraderCode  string   `json:"trader_code"`
	Permissions []string `json:"permissions"`
}

type trader struct {
	apiSecret  string
	traderCode string
}

// Service handles authentication and authorization operations
type Service struct {
	jwtSecret []byte
	// In a real deployment this would live in the database
	traders map[string]trader // map[APIKey]trader
}

// NewService creates a new authentication service with the given JWT secret
func NewService(jwtSecret string) *Service {
	return &Service{
		jwtSecret: []byte(jwtSecret),
		traders:   make(map[string]trader),
	}
}

// RegisterTrader registers API credentials for a market participant
func (s *Service) RegisterTrader(apiKey, apiSecret, traderCode string) {
	s.traders[apiKey] = trader{apiSecret: apiSecret, traderCode: traderCode}
}

// GenerateToken generates a JWT token for valid API credentials
// The token carries the participant's trader code and expires after 24 hours
func (s *Service) GenerateToken(creds Credentials) (*TokenResponse, error) {
	registered, ok := s.traders[creds.APIKey]
	if !ok || registered.apiSecret != creds.APISecret {
		return nil, ErrInvalidCredentials
	}

	expiration := time.Now().Add(24 * time.Hour)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
		TraderCode:  registered.traderCode,
		Permissions: []string{"trade"},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, ErrTokenGeneration
	}

	return &TokenResponse{
		Token:      tokenString,
		Expiration: expiration,
	}, nil
}

// ValidateToken validates a JWT token and returns the claims
// Verifies token signature and expiration
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// GinHandlers contains HTTP handlers for authentication endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for authentication endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// GenerateTokenHandler handles POST requests to generate JWT tokens
// Request body should contain API credentials
func (h *GinHandlers) GenerateTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds Credentials
		if err := c.ShouldBindJSON(&creds); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		token, err := h.service.GenerateToken(creds)
		if errors.Is(err, ErrInvalidCredentials) {
			response.Unauthorized(c, err.Error())
			return
		}
		response.Handle(c, token, err)
	}
}

// GetTraderCode extracts the trader code from JWT claims set in the request
// context. Returns an empty string if the claim is missing or not a string.
func GetTraderCode(claims interface{}) string {
	if jwtClaims, ok := claims.(jwt.MapClaims); ok {
		if code, ok := jwtClaims["trader_code"].(string); ok {
			return code
		}
	}
	return ""
}
