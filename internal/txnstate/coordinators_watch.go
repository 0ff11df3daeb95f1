package txnstate

import (
	"context"

	"github.com/coreos/pkg/capnslog"
	"github.com/pingcap-incubator/txnproxy/internal/txnpb"
	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/clientv3"
)

func setMutation(key, value []byte) txnpb.Mutation {
	return txnpb.Mutation{Kind: txnpb.MutationSet, Param1: key, Param2: value}
}

var watchLog = capnslog.NewPackageLogger("github.com/pingcap-incubator/txnproxy", "txnstate")

// CoordinatorWatcher mirrors the cluster's coordinator set from an
// external coordinated-state store into this proxy's Store, standing
// in for the real coordinated-state protocol the distilled spec leaves
// out of scope. go.etcd.io/etcd's clientv3 is reused here the way the
// teacher's scheduler package uses it for its own leader/member
// watches, rather than inventing a bespoke watch protocol.
type CoordinatorWatcher struct {
	client *clientv3.Client
	key    string
	store  *Store
	onChange func(CoordinatorsChange)
}

// NewCoordinatorWatcher returns a watcher over key in an already
// connected etcd client.
func NewCoordinatorWatcher(client *clientv3.Client, key string, store *Store, onChange func(CoordinatorsChange)) *CoordinatorWatcher {
	return &CoordinatorWatcher{client: client, key: key, store: store, onChange: onChange}
}

// Run blocks, applying every observed value change to store until ctx
// is done or the watch channel closes. A closed channel without ctx
// cancellation is treated as coordinators_changed (spec.md section
// 4.6's terminal error of the same name) and returned as an error so
// the caller can exit the proxy cleanly.
func (w *CoordinatorWatcher) Run(ctx context.Context) error {
	watchCh := w.client.Watch(ctx, w.key)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case resp, ok := <-watchCh:
			if !ok {
				return errors.New("txnstate: coordinators watch channel closed (coordinators_changed)")
			}
			if err := resp.Err(); err != nil {
				return errors.Wrap(err, "txnstate: coordinators watch")
			}
			for _, ev := range resp.Events {
				change, err := w.store.Apply(setMutation(CoordinatorsKey, ev.Kv.Value))
				if err != nil {
					watchLog.Warningf("applying coordinators update: %v", err)
					continue
				}
				if change != nil && w.onChange != nil {
					w.onChange(*change)
				}
			}
		}
	}
}
