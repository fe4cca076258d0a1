package goICloud_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	goICloud "github.com/MrEthical07/goICloud"
	"github.com/MrEthical07/goICloud/middleware"
	"github.com/MrEthical07/goICloud/record"
	"github.com/MrEthical07/goICloud/session"
	"github.com/redis/go-redis/v9"
)

// ExampleNew builds a client that keeps sessions and the login throttle in Redis.
func ExampleNew() {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})

	client, err := goICloud.New().
		WithRedis(rdb).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		return
	}
	defer client.Close()
}

// ExampleClient_Authenticate walks the login and two-factor flow.
func ExampleClient_Authenticate() {
	var client *goICloud.Client
	ctx := context.Background()
	sess := session.New("")

	snap, err := client.Authenticate(ctx, sess, "user@example.com", "password", true)
	if err != nil {
		var authErr *goICloud.AuthenticationError
		if errors.As(err, &authErr) {
			fmt.Println("rejected:", authErr.ServerMessage)
		}
		return
	}
	if snap.ChallengeRequired {
		devices, _ := client.ListTrustedDevices(ctx, sess)
		_ = client.RequestVerificationCode(ctx, sess, devices[0])
		_, err = client.ValidateVerificationCode(ctx, sess, devices[0], "123456", "password")
		if goICloud.IsInvalidVerificationCode(err) {
			return
		}
	}
}

// ExampleDatabase_QueryAll pages through every record of a type.
func ExampleDatabase_QueryAll() {
	var client *goICloud.Client
	var sess *session.Session

	q := record.Query{
		RecordType:  "CPLAssetAndMasterByAddedDate",
		Zone:        record.ZoneID{Name: "PrimarySync"},
		DesiredKeys: []string{"filenameEnc", "resOriginalRes"},
	}
	_ = client.Database("").QueryAll(context.Background(), sess, q, func(r record.Record) error {
		fmt.Println(r.RecordName, r.GetString("filenameEnc", "?"), r.GetLong("resOriginalRes", 0))
		return nil
	})
}

// TestPublicAPISurfaceCompile guards the exported API against accidental breaks.
func TestPublicAPISurfaceCompile(t *testing.T) {
	_ = goICloud.New
	_ = goICloud.LoadConfig
	_ = goICloud.DecodeResponse[record.QueryResponse]

	var _ *goICloud.Client
	var _ *goICloud.Database
	var _ goICloud.Config
	var _ goICloud.AuditSink = goICloud.NoOpSink{}
	var _ goICloud.StorageUsage
	var _ goICloud.Device

	var _ error = goICloud.ErrNotAuthenticated
	var _ error = goICloud.ErrSessionExpired
	var _ error = goICloud.ErrServiceUnavailable
	var _ error = goICloud.ErrLoginThrottled
	var _ error = goICloud.ErrInvalidVerificationCode
	var _ error = &goICloud.NetworkError{}
	var _ error = &goICloud.DecodeError{}
	var _ error = &goICloud.ServiceError{}
	var _ error = &goICloud.AuthenticationError{}
	var _ error = &goICloud.ChallengeError{}

	var _ http.CookieJar = session.NewCookieJar()
	var _ func(*goICloud.Client) func(http.Handler) http.Handler = middleware.RequireSession

	var _ func(*goICloud.Client, context.Context, *session.Session, string, string, bool) (session.Snapshot, error) = (*goICloud.Client).Authenticate
	var _ func(*goICloud.Client, context.Context, *session.Session) ([]goICloud.Device, error) = (*goICloud.Client).ListTrustedDevices
	var _ func(*goICloud.Client, context.Context, *session.Session, goICloud.Device) error = (*goICloud.Client).RequestVerificationCode
	var _ func(*goICloud.Client, context.Context, *session.Session, goICloud.Device, string, string) (session.Snapshot, error) = (*goICloud.Client).ValidateVerificationCode
	var _ func(*goICloud.Database, context.Context, *session.Session, record.Query) (*record.QueryResponse, error) = (*goICloud.Database).QueryRecords
}
