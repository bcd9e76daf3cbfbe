package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/panchalshubham0608/securekey/internal/logging"
	"github.com/panchalshubham0608/securekey/internal/vaulterr"
)

const msgInvalidCredentials = "invalid credentials"

// Provider is the identity service. It authenticates users and tracks the
// signed-in identity of this process.
type Provider interface {
	SignUp(ctx context.Context, email, password string) (Identity, error)
	SignIn(ctx context.Context, email, password string) (Identity, error)
	SignOut(ctx context.Context) error
	Current() *Identity
	// OnAuthStateChanged calls fn with the current identity and again on
	// every sign-in or sign-out, until unsubscribed.
	OnAuthStateChanged(fn func(*Identity)) (unsubscribe func())
}

type LocalProviderOptions struct {
	Argon  ArgonParams
	Logger *log.Logger
	Now    func() time.Time
}

// LocalProvider keeps users in a UserStore with argon2id password hashes.
type LocalProvider struct {
	users UserStore
	argon ArgonParams
	log   *log.Logger
	now   func() time.Time

	mu      sync.Mutex
	current *Identity
	subs    map[int]func(*Identity)
	nextSub int
}

var _ Provider = (*LocalProvider)(nil)

func NewLocalProvider(users UserStore, opts LocalProviderOptions) *LocalProvider {
	if opts.Argon.KeyLen == 0 {
		opts.Argon = DefaultArgon
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &LocalProvider{
		users: users,
		argon: opts.Argon,
		log:   logging.OrNop(opts.Logger),
		now:   opts.Now,
		subs:  map[int]func(*Identity){},
	}
}

// Register creates an account without signing it in.
func (p *LocalProvider) Register(ctx context.Context, email, password string) (Identity, error) {
	const op = "sign up"
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return Identity{}, vaulterr.Validation(op, "a valid email is required")
	}
	if password == "" {
		return Identity{}, vaulterr.Validation(op, "password is required")
	}
	hash, err := HashPassword(p.argon, password)
	if err != nil {
		return Identity{}, vaulterr.Crypto(op, "unable to hash password", err)
	}
	u := &User{UID: uuid.NewString(), Email: email, PassHash: hash, CreatedAt: p.now().UTC()}
	err = p.users.Add(ctx, u)
	if errors.Is(err, ErrUserExists) {
		return Identity{}, vaulterr.Duplicate(op, "an account with this email already exists")
	}
	if err != nil {
		return Identity{}, vaulterr.Store(op, err)
	}
	p.log.Info("user registered", "uid", u.UID)
	return Identity{UID: u.UID, Email: u.Email}, nil
}

// Authenticate checks credentials without signing in. Every failure
// returns the same message.
func (p *LocalProvider) Authenticate(ctx context.Context, email, password string) (Identity, error) {
	const op = "sign in"
	u, err := p.users.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return Identity{}, vaulterr.Validation(op, msgInvalidCredentials)
	}
	if err != nil {
		return Identity{}, vaulterr.Store(op, err)
	}
	ok, err := VerifyPassword(password, u.PassHash)
	if err != nil || !ok {
		p.log.Warn("sign in rejected", "uid", u.UID)
		return Identity{}, vaulterr.Validation(op, msgInvalidCredentials)
	}
	return Identity{UID: u.UID, Email: u.Email}, nil
}

// Lookup returns the identity for uid.
func (p *LocalProvider) Lookup(ctx context.Context, uid string) (Identity, error) {
	u, err := p.users.FindByUID(ctx, uid)
	if errors.Is(err, ErrUserNotFound) {
		return Identity{}, vaulterr.NotFound("lookup user", "no such user")
	}
	if err != nil {
		return Identity{}, vaulterr.Store("lookup user", err)
	}
	return Identity{UID: u.UID, Email: u.Email}, nil
}

func (p *LocalProvider) SignUp(ctx context.Context, email, password string) (Identity, error) {
	id, err := p.Register(ctx, email, password)
	if err != nil {
		return Identity{}, err
	}
	p.setCurrent(&id)
	return id, nil
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (Identity, error) {
	id, err := p.Authenticate(ctx, email, password)
	if err != nil {
		return Identity{}, err
	}
	p.setCurrent(&id)
	p.log.Info("signed in", "uid", id.UID)
	return id, nil
}

func (p *LocalProvider) SignOut(context.Context) error {
	p.setCurrent(nil)
	return nil
}

func (p *LocalProvider) Current() *Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	id := *p.current
	return &id
}

func (p *LocalProvider) OnAuthStateChanged(fn func(*Identity)) func() {
	p.mu.Lock()
	key := p.nextSub
	p.nextSub++
	p.subs[key] = fn
	cur := p.current
	p.mu.Unlock()

	fn(copyIdentity(cur))
	return func() {
		p.mu.Lock()
		delete(p.subs, key)
		p.mu.Unlock()
	}
}

func (p *LocalProvider) setCurrent(id *Identity) {
	p.mu.Lock()
	p.current = copyIdentity(id)
	subs := make([]func(*Identity), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(copyIdentity(id))
	}
}

func copyIdentity(id *Identity) *Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
