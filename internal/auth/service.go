package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"selco.dev/staffauth/internal/notify"
	"selco.dev/staffauth/internal/obs"
)

const (
	defaultAccessTTL     = 24 * time.Hour
	defaultRefreshTTL    = 7 * 24 * time.Hour
	defaultAllowedDomain = "@selco.com.br"
	defaultStoreTimeout  = 3 * time.Second

	// RevocationPrefix namespaces revoked tokens in the revocation store.
	RevocationPrefix = "blacklist:token:"
	revokedMarker    = "blacklisted"
)

// Registration is the input of Register.
type Registration struct {
	Email   string
	Profile Profile
}

// Service orchestrates registration, login, logout and validation.
type Service struct {
	accounts    AccountStore
	revocations RevocationStore
	audit       AuditStore
	notifier    Notifier

	hasher   Hasher
	tokens   *Issuer
	logger   *zap.Logger
	now      func() time.Time
	domain   string
	loginURL string

	tokenSecret  string
	accessTTL    time.Duration
	refreshTTL   time.Duration
	storeTimeout time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithTokenSecret sets the HS256 signing secret.
func WithTokenSecret(secret string) ServiceOption {
	return func(s *Service) error {
		s.tokenSecret = strings.TrimSpace(secret)
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithStoreTimeout bounds every account, audit and revocation store call.
func WithStoreTimeout(d time.Duration) ServiceOption {
	return func(s *Service) error {
		if d > 0 {
			s.storeTimeout = d
		}
		return nil
	}
}

// WithAllowedDomain sets the single email domain accepted at registration,
// in "@example.com" form.
func WithAllowedDomain(domain string) ServiceOption {
	return func(s *Service) error {
		domain = strings.TrimSpace(domain)
		if domain == "" {
			return nil
		}
		if !strings.HasPrefix(domain, "@") {
			domain = "@" + domain
		}
		s.domain = domain
		return nil
	}
}

// WithLoginURL sets the link embedded in onboarding emails.
func WithLoginURL(url string) ServiceOption {
	return func(s *Service) error {
		s.loginURL = strings.TrimSpace(url)
		return nil
	}
}

// WithAuditStore sets where access attempts are recorded.
func WithAuditStore(store AuditStore) ServiceOption {
	return func(s *Service) error {
		s.audit = store
		return nil
	}
}

// WithNotifier sets the event sink.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) error {
		s.notifier = n
		return nil
	}
}

// WithPasswordCost fixes the bcrypt work factor.
func WithPasswordCost(cost int) ServiceOption {
	return func(s *Service) error {
		s.hasher = NewHasher(cost)
		return nil
	}
}

// WithLogger overrides the service logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(accounts AccountStore, revocations RevocationStore, opts ...ServiceOption) (*Service, error) {
	if accounts == nil || revocations == nil {
		return nil, errors.New("auth: account and revocation stores are required")
	}
	svc := &Service{
		accounts:     accounts,
		revocations:  revocations,
		hasher:       NewHasher(DefaultPasswordCost),
		logger:       obs.Logger(),
		now:          time.Now,
		domain:       defaultAllowedDomain,
		accessTTL:    defaultAccessTTL,
		refreshTTL:   defaultRefreshTTL,
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	issuer, err := NewIssuer(svc.tokenSecret, svc.accessTTL, svc.refreshTTL, svc.now)
	if err != nil {
		return nil, err
	}
	svc.tokens = issuer
	svc.logger = svc.logger.Named("auth")
	return svc, nil
}

// AllowedDomain returns the configured registration domain.
func (s *Service) AllowedDomain() string { return s.domain }

// Register creates an ACTIVE EMPLOYEE account with a temporary password and
// returns its id.
func (s *Service) Register(ctx context.Context, reg Registration) (string, error) {
	email := strings.TrimSpace(reg.Email)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if !s.domainAllowed(email) {
		s.logger.Warn("registration rejected: domain not allowed", zap.String("email", email))
		obs.ObserveAuth("register", "domain not allowed")
		return "", ErrDomainNotAllowed
	}

	exists, err := s.existsByEmail(ctx, email)
	if err != nil {
		return "", s.registerFailed("check email", err)
	}
	if exists {
		s.logger.Warn("registration rejected: email already registered", zap.String("email", email))
		obs.ObserveAuth("register", "already exists")
		return "", ErrAlreadyExists
	}

	temporary, err := TemporaryPassword()
	if err != nil {
		return "", s.registerFailed("temporary password", err)
	}
	hash, err := s.hasher.Hash(temporary)
	if err != nil {
		return "", s.registerFailed("hash password", err)
	}

	now := s.now().UTC()
	acc := &Account{
		Email:        email,
		PasswordHash: hash,
		Class:        ClassEmployee,
		Status:       StatusActive,
		Profile:      reg.Profile,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.save(ctx, acc); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			// Lost a concurrent race for the same email.
			obs.ObserveAuth("register", "already exists")
			return "", ErrAlreadyExists
		}
		return "", s.registerFailed("save account", err)
	}

	s.logger.Info("account registered", zap.String("account_id", acc.ID), zap.String("email", email))
	obs.ObserveAuth("register", string(ReasonSuccess))
	s.notifyRegistration(ctx, acc, temporary)
	return acc.ID, nil
}

// domainAllowed compares "@"+domain-part with the configured domain exactly;
// subdomains and suffixes do not match.
func (s *Service) domainAllowed(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 {
		return false
	}
	return "@"+email[at+1:] == s.domain
}

// Login checks the credentials and issues a token pair. Handled rejections
// are returned as results; the error is reserved for invalid input and
// dependency failures.
func (s *Service) Login(ctx context.Context, email, password string, caller Caller) (LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return LoginResult{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	entry := AccessLogEntry{Email: email, Action: ActionLogin, IP: caller.IP, UserAgent: caller.UserAgent}

	acc, err := s.findByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		s.logger.Warn("login rejected: account not found", zap.String("email", email))
		s.finishLogin(ctx, entry, ReasonNotFound)
		return LoginResult{Outcome: LoginInvalidCredentials, Reason: ReasonNotFound}, nil
	}
	if err != nil {
		s.finishLogin(ctx, entry, ReasonError)
		return LoginResult{Outcome: LoginInvalidCredentials, Reason: ReasonError}, s.dependencyError("login", "find account", err)
	}
	entry.ActorID = acc.ID

	if !acc.Active() {
		s.logger.Warn("login rejected: account not active", zap.String("email", email), zap.String("status", string(acc.Status)))
		s.finishLogin(ctx, entry, ReasonInactive)
		return LoginResult{Outcome: LoginInactive, Reason: ReasonInactive, AccountID: acc.ID}, nil
	}

	ok, err := s.hasher.Verify(acc.PasswordHash, password)
	if err != nil {
		s.finishLogin(ctx, entry, ReasonError)
		return LoginResult{Outcome: LoginInvalidCredentials, Reason: ReasonError}, s.dependencyError("login", "verify password", err)
	}
	if !ok {
		s.logger.Warn("login rejected: bad credentials", zap.String("email", email))
		s.finishLogin(ctx, entry, ReasonBadCredentials)
		s.notifyLogin(ctx, acc, false, caller.IP)
		return LoginResult{Outcome: LoginInvalidCredentials, Reason: ReasonBadCredentials, AccountID: acc.ID}, nil
	}

	access, _, err := s.tokens.IssueAccess(acc)
	if err != nil {
		s.finishLogin(ctx, entry, ReasonError)
		return LoginResult{Outcome: LoginInvalidCredentials, Reason: ReasonError}, s.dependencyError("login", "issue access token", err)
	}
	refresh, _, err := s.tokens.IssueRefresh(acc.Email)
	if err != nil {
		s.finishLogin(ctx, entry, ReasonError)
		return LoginResult{Outcome: LoginInvalidCredentials, Reason: ReasonError}, s.dependencyError("login", "issue refresh token", err)
	}

	entry.Success = true
	s.finishLogin(ctx, entry, ReasonSuccess)
	s.notifyLogin(ctx, acc, true, caller.IP)
	s.logger.Info("login succeeded", zap.String("account_id", acc.ID))

	return LoginResult{
		Outcome:      LoginSucceeded,
		Reason:       ReasonSuccess,
		AccountID:    acc.ID,
		AccessToken:  access,
		RefreshToken: refresh,
		Class:        acc.Class,
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}

func (s *Service) finishLogin(ctx context.Context, entry AccessLogEntry, reason Reason) {
	entry.Reason = reason
	s.record(ctx, &entry)
	obs.ObserveAuth(ActionLogin, string(reason))
}

// Validate checks a bearer token (scheme already stripped). Checks run in a
// fixed order and the first failure wins. A non-nil error means a dependency
// failed and the result must be treated as invalid.
func (s *Service) Validate(ctx context.Context, token string, caller Caller) (ValidationResult, error) {
	res, actor, err := s.validate(ctx, strings.TrimSpace(token))
	entry := &AccessLogEntry{
		ActorID:   actor,
		Email:     res.Email,
		Action:    ActionValidate,
		Success:   res.Valid,
		Reason:    res.Reason,
		IP:        caller.IP,
		UserAgent: caller.UserAgent,
	}
	if err != nil {
		entry.Reason = ReasonError
	}
	s.record(ctx, entry)
	obs.ObserveAuth(ActionValidate, string(entry.Reason))
	return res, err
}

func (s *Service) validate(ctx context.Context, token string) (ValidationResult, string, error) {
	if token == "" {
		return invalid(ReasonMalformed), "", nil
	}
	if s.isRevoked(ctx, token) {
		return invalid(ReasonRevoked), "", nil
	}
	claims, err := s.tokens.Parse(token)
	if err != nil {
		s.logger.Debug("token rejected", zap.Error(err))
		return invalid(ReasonMalformed), "", nil
	}
	if claims.ExpiredAt(s.now()) {
		return invalid(ReasonExpired), claims.UserID, nil
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return invalid(ReasonMalformed), claims.UserID, nil
	}

	acc, err := s.findByEmail(ctx, subject)
	if errors.Is(err, ErrNotFound) {
		return invalid(ReasonAccountNotFound), claims.UserID, nil
	}
	if err != nil {
		return invalid(ReasonError), claims.UserID, s.dependencyError("validate", "find account", err)
	}
	if acc.Email != subject {
		s.logger.Warn("token subject does not match account", zap.String("account_id", acc.ID))
		return invalid(ReasonSubjectMismatch), acc.ID, nil
	}
	if !acc.Active() {
		return invalid(ReasonAccountNotActive), acc.ID, nil
	}

	return ValidationResult{
		Valid:     true,
		Reason:    ReasonSuccess,
		AccountID: acc.ID,
		Name:      acc.DisplayName(),
		Email:     acc.Email,
		Class:     acc.Class,
		ExpiresAt: claims.Expiry(),
	}, acc.ID, nil
}

// isRevoked fails open: when the store cannot be read the token is treated
// as not revoked so an outage does not reject all traffic.
func (s *Service) isRevoked(ctx context.Context, token string) bool {
	sctx, cancel := s.storeContext(ctx)
	defer cancel()
	revoked, err := s.revocations.Exists(sctx, RevocationPrefix+token)
	if err != nil {
		obs.RevocationStoreError("exists")
		s.logger.Error("revocation check failed; treating token as not revoked", zap.Error(err))
		return false
	}
	return revoked
}

// Logout revokes the token until its natural expiry. A failure to record the
// revocation is returned: logout never reports success without it.
func (s *Service) Logout(ctx context.Context, token string, caller Caller) error {
	token = stripBearer(token)
	entry := &AccessLogEntry{Action: ActionLogout, IP: caller.IP, UserAgent: caller.UserAgent}
	if token == "" {
		s.rejectLogout(ctx, entry, ReasonInvalidToken)
		return fmt.Errorf("%w: token is required", ErrInvalidInput)
	}

	if s.isRevoked(ctx, token) {
		s.logger.Warn("logout rejected: token already invalidated")
		s.rejectLogout(ctx, entry, ReasonAlreadyRevoked)
		return ErrAlreadyInvalidated
	}

	claims, err := s.tokens.Parse(token)
	if err != nil {
		s.rejectLogout(ctx, entry, ReasonInvalidToken)
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	// The subject only feeds the audit entry; an empty one leaves it actor-less.
	entry.Email = strings.TrimSpace(claims.Subject)
	entry.ActorID = claims.UserID

	if ttl := claims.Expiry().Sub(s.now()); ttl > 0 {
		if err := s.revoke(ctx, token, ttl); err != nil {
			obs.RevocationStoreError("set")
			obs.ObserveAuth(ActionLogout, string(ReasonError))
			entry.Reason = ReasonError
			s.record(ctx, entry)
			return s.dependencyError("logout", "revoke token", err)
		}
	} else {
		s.logger.Info("logout of an expired token; no revocation entry written")
	}

	entry.Success = true
	entry.Reason = ReasonLogout
	s.record(ctx, entry)
	obs.ObserveAuth(ActionLogout, string(ReasonLogout))
	s.logger.Info("logout succeeded", zap.String("email", entry.Email))
	return nil
}

func (s *Service) rejectLogout(ctx context.Context, entry *AccessLogEntry, reason Reason) {
	entry.Reason = reason
	s.record(ctx, entry)
	obs.ObserveAuth(ActionLogout, string(reason))
}

// ClearRevocations removes every revocation entry. Maintenance only.
func (s *Service) ClearRevocations(ctx context.Context) (int64, error) {
	n, err := s.revocations.DeleteAll(ctx, RevocationPrefix)
	if err != nil {
		return 0, fmt.Errorf("%w: clear revocations: %w", ErrDependency, err)
	}
	s.logger.Info("revocation entries cleared", zap.Int64("count", n))
	return n, nil
}

// RevocationCount returns the number of live revocation entries.
func (s *Service) RevocationCount(ctx context.Context) (int64, error) {
	n, err := s.revocations.Count(ctx, RevocationPrefix)
	if err != nil {
		return 0, fmt.Errorf("%w: count revocations: %w", ErrDependency, err)
	}
	return n, nil
}

// storeContext derives the per-call deadline applied to every store round trip.
func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

func (s *Service) findByEmail(ctx context.Context, email string) (*Account, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.accounts.FindByEmail(ctx, email)
}

func (s *Service) existsByEmail(ctx context.Context, email string) (bool, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.accounts.ExistsByEmail(ctx, email)
}

func (s *Service) save(ctx context.Context, acc *Account) error {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.accounts.Save(ctx, acc)
}

func (s *Service) revoke(ctx context.Context, token string, ttl time.Duration) error {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.revocations.Set(ctx, RevocationPrefix+token, revokedMarker, ttl)
}

func stripBearer(token string) string {
	token = strings.TrimSpace(token)
	if len(token) >= len("Bearer ") && strings.EqualFold(token[:len("Bearer ")], "Bearer ") {
		token = strings.TrimSpace(token[len("Bearer "):])
	}
	return token
}

// record appends to the audit store; failures are logged and dropped.
func (s *Service) record(ctx context.Context, entry *AccessLogEntry) {
	if s.audit == nil {
		return
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = s.now().UTC()
	}
	sctx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.audit.Append(sctx, entry); err != nil {
		s.logger.Error("audit append failed",
			zap.String("action", entry.Action),
			zap.String("reason", string(entry.Reason)),
			zap.Error(err),
		)
	}
}

func (s *Service) registerFailed(step string, err error) error {
	obs.ObserveAuth("register", string(ReasonError))
	return s.dependencyError("register", step, err)
}

func (s *Service) dependencyError(op, step string, err error) error {
	s.logger.Error(op+" failed", zap.String("step", step), zap.Error(err))
	return fmt.Errorf("%w: %s: %w", ErrDependency, step, err)
}

func (s *Service) notifyRegistration(ctx context.Context, acc *Account, temporary string) {
	if s.notifier == nil {
		return
	}
	created := notify.AccountCreated{
		AccountID:         acc.ID,
		Email:             acc.Email,
		Name:              acc.Profile.Name,
		Department:        acc.Profile.Department,
		Role:              acc.Profile.JobTitle,
		Class:             string(acc.Class),
		Status:            string(acc.Status),
		CreatedAt:         acc.CreatedAt,
		TemporaryPassword: temporary,
	}
	if err := s.notifier.AccountCreated(ctx, created); err != nil {
		s.notificationFailed("account created", acc.ID, err)
	}
	email, err := notify.RegistrationEmail(acc.Email, acc.DisplayName(), temporary, s.loginURL, s.now())
	if err == nil {
		err = s.notifier.SendEmail(ctx, email)
	}
	if err != nil {
		s.notificationFailed("registration email", acc.ID, err)
	}
}

// notifyLogin emails the account of record. Attempts against unknown emails
// never reach here, so no mail goes to unconfirmed addresses.
func (s *Service) notifyLogin(ctx context.Context, acc *Account, success bool, ip string) {
	if s.notifier == nil {
		return
	}
	email, err := notify.LoginEmail(acc.Email, acc.DisplayName(), success, ip, s.now())
	if err == nil {
		err = s.notifier.SendEmail(ctx, email)
	}
	if err != nil {
		s.notificationFailed("login email", acc.ID, err)
	}
}

func (s *Service) notificationFailed(what, accountID string, err error) {
	s.logger.Warn("notification failed; continuing",
		zap.String("notification", what),
		zap.String("account_id", accountID),
		zap.Error(fmt.Errorf("%w: %w", ErrNotification, err)),
	)
}
