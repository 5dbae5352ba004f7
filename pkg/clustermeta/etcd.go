package clustermeta

import (
	"context"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"
)

const etcdScheme = "etcd://"

const etcdDialTimeout = 5 * time.Second

// Etcd stores the membership document under a single etcd key and uses an
// etcd mutex next to it as the cross-process lock. It serves deployments
// where the fleet has no shared filesystem for the document.
type Etcd struct {
	client *clientv3.Client
	key    string
	logger *zap.Logger
}

// OpenEtcd connects a store for a location of the form
// "etcd://host:port[,host:port]/key/path".
func OpenEtcd(uri string, logger *zap.Logger) (*Etcd, error) {
	endpoints, key, err := parseEtcdURI(uri)
	if err != nil {
		return nil, err
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: etcdDialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("clustermeta: etcd client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Etcd{client: cli, key: key, logger: logger}, nil
}

func parseEtcdURI(uri string) (endpoints []string, key string, err error) {
	rest, ok := strings.CutPrefix(uri, etcdScheme)
	if !ok {
		return nil, "", fmt.Errorf("clustermeta: not an etcd location: %q", uri)
	}
	hosts, path, ok := strings.Cut(rest, "/")
	if !ok || hosts == "" || path == "" {
		return nil, "", fmt.Errorf("clustermeta: malformed etcd location %q", uri)
	}
	for _, h := range strings.Split(hosts, ",") {
		if h = strings.TrimSpace(h); h != "" {
			endpoints = append(endpoints, h)
		}
	}
	if len(endpoints) == 0 {
		return nil, "", fmt.Errorf("clustermeta: no endpoints in %q", uri)
	}
	return endpoints, "/" + path, nil
}

// Close releases the underlying client.
func (s *Etcd) Close() error { return s.client.Close() }

// Load reads the document key without locking.
func (s *Etcd) Load(ctx context.Context) (*Document, error) {
	resp, err := s.client.Get(ctx, s.key)
	if err != nil {
		return nil, err
	}
	if resp.Count == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.key)
	}
	return decode(resp.Kvs[0].Value)
}

// Update implements Store using a session-scoped etcd mutex. The mutex
// blocks without timeout; ctx cancellation aborts the wait.
func (s *Etcd) Update(ctx context.Context, fn UpdateFunc) error {
	sess, err := concurrency.NewSession(s.client)
	if err != nil {
		return fmt.Errorf("clustermeta: etcd session: %w", err)
	}
	defer sess.Close()

	mu := concurrency.NewMutex(sess, s.key+"/lock")
	if err := mu.Lock(ctx); err != nil {
		return fmt.Errorf("clustermeta: acquire etcd lock: %w", err)
	}
	defer func() {
		// unlock on a fresh context so a cancelled caller still
		// releases the mutex
		uctx, cancel := context.WithTimeout(context.Background(), etcdDialTimeout)
		defer cancel()
		if uerr := mu.Unlock(uctx); uerr != nil {
			s.logger.Warn("failed to release etcd lock",
				zap.String("key", s.key), zap.Error(uerr))
		}
	}()

	doc := &Document{}
	resp, err := s.client.Get(ctx, s.key)
	if err != nil {
		return err
	}
	if resp.Count > 0 {
		if doc, err = decode(resp.Kvs[0].Value); err != nil {
			return err
		}
	}
	dirty, err := fn(doc)
	if err != nil || !dirty {
		return err
	}
	data, err := encode(doc)
	if err != nil {
		return err
	}
	if _, err := s.client.Put(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("clustermeta: persist document: %w", err)
	}
	return nil
}

var _ Store = (*Etcd)(nil)
