package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newFakeTopic(t *testing.T) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "statuswatch-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "runs-completed")
	require.NoError(t, err)
	return srv, topic
}

func TestPublisherPublishesJSON(t *testing.T) {
	t.Parallel()

	srv, topic := newFakeTopic(t)
	pub := New(topic)
	require.Equal(t, "runs-completed", pub.Topic())

	id, err := pub.Publish(context.Background(), "run.completed", map[string]any{
		"run_id": "0190b0d8-0000-7000-8000-000000000000",
		"count":  100,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NoError(t, pub.Close())

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "application/json", msgs[0].Attributes["content_type"])
	require.Equal(t, "run.completed", msgs[0].Attributes["subject"])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &decoded))
	require.Equal(t, "0190b0d8-0000-7000-8000-000000000000", decoded["run_id"])
	require.InDelta(t, 100.0, decoded["count"], 1e-9)
}

func TestPublisherRejectsUnmarshalablePayload(t *testing.T) {
	t.Parallel()

	_, topic := newFakeTopic(t)
	pub := New(topic)
	_, err := pub.Publish(context.Background(), "", make(chan int))
	require.Error(t, err)
}

func TestPublisherWithoutTopic(t *testing.T) {
	t.Parallel()

	pub := New(nil)
	_, err := pub.Publish(context.Background(), "", "x")
	require.Error(t, err)
	require.Empty(t, pub.Topic())
	require.NoError(t, pub.Close())
}

func TestDialRequiresProjectAndTopic(t *testing.T) {
	t.Parallel()

	_, err := Dial(context.Background(), "", "runs-completed")
	require.Error(t, err)
	_, err = Dial(context.Background(), "project", "")
	require.Error(t, err)
}
