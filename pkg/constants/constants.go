package constants

import (
	"github.com/go-playground/validator/v10"
)

type ContextKey string

const (
	AppKey       ContextKey = "app"
	ParamsKey    ContextKey = "params"
	LoggerKey    ContextKey = "logger"
	PoolKey      ContextKey = "pool"
	TxKey        ContextKey = "tx"
	TenantIDKey  ContextKey = "tenantID"
	SessionKey   ContextKey = "session"
	RequestStart ContextKey = "requestStart"
)

var Validate = validator.New()
