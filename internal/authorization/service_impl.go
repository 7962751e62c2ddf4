package authorization

import (
	"context"
	"crypto/subtle"
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/cespare/xxhash/v2"
	"github.com/smallbiznis/forecast/internal/config"
	"github.com/smallbiznis/forecast/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const subjectPrefix = "api_key:"

// apiKey is a configured key and the casbin subject it acts as.
type apiKey struct {
	secret  string
	subject string
	role    string
}

type EnforcerParams struct {
	fx.In

	DB     *gorm.DB `optional:"true"`
	Config config.Config
}

// NewEnforcer persists policies through gorm when a database is available and
// keeps them in memory otherwise.
func NewEnforcer(p EnforcerParams) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}

	var enforcer *casbin.SyncedEnforcer
	if p.DB != nil {
		adapter, err := gormadapter.NewAdapterByDB(p.DB)
		if err != nil {
			return nil, err
		}
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
		if err != nil {
			return nil, err
		}
		enforcer.EnableAutoSave(true)
		if err := enforcer.LoadPolicy(); err != nil {
			return nil, err
		}
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err != nil {
			return nil, err
		}
	}
	enforcer.EnableAutoBuildRoleLinks(true)

	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	keys, err := parseKeys(p.Config)
	if err != nil {
		return nil, err
	}
	if err := syncKeyGrants(enforcer, keys); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

type Params struct {
	fx.In

	Config   config.Config
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	keys     []apiKey
}

func NewService(p Params) (Service, error) {
	keys, err := parseKeys(p.Config)
	if err != nil {
		return nil, err
	}
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		keys:     keys,
	}, nil
}

func (s *ServiceImpl) Enabled() bool {
	return len(s.keys) > 0
}

func (s *ServiceImpl) Authenticate(secret string) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", ErrUnauthorized
	}
	subject := ""
	for _, key := range s.keys {
		if subtle.ConstantTimeCompare([]byte(key.secret), []byte(secret)) == 1 {
			subject = key.subject
		}
	}
	if subject == "" {
		return "", ErrUnauthorized
	}
	return subject, nil
}

func (s *ServiceImpl) Authorize(ctx context.Context, subject, object, action string) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		logger.FromContext(ctx).Warn("authorization denied",
			zap.String("subject", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

// parseKeys reads FORECAST_API_KEY (trainer) and FORECAST_API_KEYS entries
// of the form key:reader or key:trainer.
func parseKeys(cfg config.Config) ([]apiKey, error) {
	var keys []apiKey
	if secret := strings.TrimSpace(cfg.APIKey); secret != "" {
		keys = append(keys, newAPIKey(secret, RoleTrainer))
	}
	for _, entry := range cfg.APIKeys {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		secret, role, ok := strings.Cut(entry, ":")
		secret = strings.TrimSpace(secret)
		if !ok || secret == "" {
			return nil, fmt.Errorf("%w: api key entry must be key:role", ErrInvalidRole)
		}
		role = "role:" + strings.ToLower(strings.TrimSpace(role))
		if role != RoleReader && role != RoleTrainer {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
		}
		keys = append(keys, newAPIKey(secret, role))
	}
	return keys, nil
}

// newAPIKey derives the subject from a digest so raw keys never reach the
// policy table.
func newAPIKey(secret, role string) apiKey {
	return apiKey{
		secret:  secret,
		subject: subjectPrefix + strconv.FormatUint(xxhash.Sum64String(secret), 16),
		role:    role,
	}
}

// syncKeyGrants makes the api key groupings match the configured keys.
func syncKeyGrants(enforcer *casbin.SyncedEnforcer, keys []apiKey) error {
	wanted := make(map[string]string, len(keys))
	for _, key := range keys {
		wanted[key.subject] = key.role
	}

	existing, err := enforcer.GetGroupingPolicy()
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || !strings.HasPrefix(rule[0], subjectPrefix) {
			continue
		}
		if wanted[rule[0]] == rule[1] {
			continue
		}
		if _, err := enforcer.RemoveGroupingPolicy(rule[0], rule[1]); err != nil {
			return err
		}
	}

	for subject, role := range wanted {
		if _, err := enforcer.AddGroupingPolicy(subject, role); err != nil {
			return err
		}
	}
	return nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{RoleReader, ObjectForecast, ActionForecastView},
		{RoleReader, ObjectModel, ActionModelView},

		{RoleTrainer, ObjectForecast, ActionForecastRefresh},
		{RoleTrainer, ObjectModel, ActionModelTrain},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	// Trainers can read everything readers can.
	_, err := enforcer.AddGroupingPolicy(RoleTrainer, RoleReader)
	return err
}
