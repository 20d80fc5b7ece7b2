package controllers

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/malsync/internal/models"
	"github.com/amaumene/malsync/internal/services/identity"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeUsers struct {
	policy identity.Policy
	err    error
}

func (f *fakeUsers) GetValidUser(ctx context.Context, userID string) (*identity.Credentials, identity.Policy, error) {
	if f.err != nil {
		return nil, identity.Policy{}, f.err
	}
	return &identity.Credentials{UserID: userID, AccessToken: "token-" + userID}, f.policy, nil
}

// fakeMappings is an in-memory MappingStore counting its queries
type fakeMappings struct {
	forward map[int]models.NativeID
	err     error
	block   chan struct{}
	queries int
}

func (f *fakeMappings) LookupMapping(ns models.Namespace, foreignID int) (models.NativeID, bool, error) {
	f.queries++
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return 0, false, f.err
	}
	id, ok := f.forward[foreignID]
	return id, ok, nil
}

func (f *fakeMappings) LookupByNative(ns models.Namespace, nativeID models.NativeID) (int, bool, error) {
	f.queries++
	if f.err != nil {
		return 0, false, f.err
	}
	best, found := 0, false
	for foreign, native := range f.forward {
		if native == nativeID && (!found || foreign < best) {
			best, found = foreign, true
		}
	}
	return best, found, nil
}
