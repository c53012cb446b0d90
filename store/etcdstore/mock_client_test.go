package etcdstore

import (
	"context"

	"github.com/stretchr/testify/mock"
	clientv3 "go.etcd.io/etcd/client/v3"
)

type mockClient struct {
	mock.Mock
}

var _ Client = (*mockClient)(nil)

func (m *mockClient) Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	args := m.Called(ctx, key)
	resp, _ := args.Get(0).(*clientv3.GetResponse)
	return resp, args.Error(1)
}

func (m *mockClient) Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	args := m.Called(ctx, key, val)
	resp, _ := args.Get(0).(*clientv3.PutResponse)
	return resp, args.Error(1)
}

func (m *mockClient) Txn(ctx context.Context) clientv3.Txn {
	args := m.Called(ctx)
	return args.Get(0).(clientv3.Txn)
}

func (m *mockClient) Grant(ctx context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error) {
	args := m.Called(ctx, ttl)
	resp, _ := args.Get(0).(*clientv3.LeaseGrantResponse)
	return resp, args.Error(1)
}

func (m *mockClient) Revoke(ctx context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error) {
	args := m.Called(ctx, id)
	resp, _ := args.Get(0).(*clientv3.LeaseRevokeResponse)
	return resp, args.Error(1)
}

func (m *mockClient) TimeToLive(ctx context.Context, id clientv3.LeaseID, opts ...clientv3.LeaseOption) (*clientv3.LeaseTimeToLiveResponse, error) {
	args := m.Called(ctx, id)
	resp, _ := args.Get(0).(*clientv3.LeaseTimeToLiveResponse)
	return resp, args.Error(1)
}

func (m *mockClient) Watch(ctx context.Context, key string, opts ...clientv3.OpOption) clientv3.WatchChan {
	args := m.Called(ctx, key)
	return args.Get(0).(clientv3.WatchChan)
}

// fakeTxn 忽略条件，直接返回预设结果
type fakeTxn struct {
	succeeded bool
	err       error
}

func (t *fakeTxn) If(cs ...clientv3.Cmp) clientv3.Txn   { return t }
func (t *fakeTxn) Then(ops ...clientv3.Op) clientv3.Txn { return t }
func (t *fakeTxn) Else(ops ...clientv3.Op) clientv3.Txn { return t }

func (t *fakeTxn) Commit() (*clientv3.TxnResponse, error) {
	if t.err != nil {
		return nil, t.err
	}
	return &clientv3.TxnResponse{Succeeded: t.succeeded}, nil
}
