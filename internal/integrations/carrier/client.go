package carrier

import (
	"context"
	"sort"
	"strings"

	"github.com/BearBump/CourierHub/internal/models"
)

// Credentials — расшифрованные учётные данные клиента у перевозчика (env_key -> value).
type Credentials map[string]string

// Client ходит к перевозчику и возвращает сырое тело ответа.
type Client interface {
	Fetch(ctx context.Context, creds Credentials, awb string) ([]byte, error)
}

// Adapter превращает сырое тело ответа в каноническое представление. Без I/O.
type Adapter interface {
	Normalize(raw []byte) (models.NormalizedTracking, error)
}

type Provider struct {
	Key     string
	Client  Client
	Adapter Adapter
	// RequiredCredentials: ключи, без которых клиент не может ходить к перевозчику.
	RequiredCredentials []string
}

// MissingCredentials returns the required keys absent (or blank) in creds.
func (p Provider) MissingCredentials(creds Credentials) []string {
	var missing []string
	for _, k := range p.RequiredCredentials {
		if strings.TrimSpace(creds[k]) == "" {
			missing = append(missing, k)
		}
	}
	return missing
}

type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p Provider) {
	r.providers[strings.ToLower(p.Key)] = p
}

func (r *Registry) Get(key string) (Provider, bool) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(key))]
	return p, ok
}

func (r *Registry) Keys() []string {
	out := make([]string, 0, len(r.providers))
	for k := range r.providers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
