// Package goICloud is a client for the cookie-authenticated iCloud web
// services: password login, the trusted-device two-factor challenge, storage
// usage and record database queries.
//
// A [Client] is built once with [New] and shared. It holds no login state;
// each call takes the [session.Session] it acts on, so one Client can serve
// many accounts. Sessions persist through [session.Encode], the Redis-backed
// [session.Store] or signed handoff tokens.
//
// A typical flow:
//
//	client, err := goICloud.New().Build()
//	sess := client.NewSession()
//	snap, err := client.Authenticate(ctx, sess, appleID, password, true)
//	if snap.ChallengeRequired {
//		devices, _ := client.ListTrustedDevices(ctx, sess)
//		_ = client.RequestVerificationCode(ctx, sess, devices[0])
//		snap, err = client.ValidateVerificationCode(ctx, sess, devices[0], code, password)
//	}
//	resp, err := client.Database("").QueryRecords(ctx, sess, record.Query{RecordType: "CPLAlbumByPositionLive"})
//
// Failures are typed: [NetworkError], [DecodeError], [ServiceError],
// [AuthenticationError] and [ChallengeError]. The client never retries.
package goICloud
