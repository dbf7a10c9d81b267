package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName     = "ngxconfig.v1.EventService"
	subscribeMethod = "/" + ServiceName + "/Subscribe"
)

// EventServiceServer streams events as google.protobuf.Struct messages of
// the form {source, type, timestamp, data}. The request Struct may carry a
// "sources" list to filter by event source.
type EventServiceServer interface {
	Subscribe(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

var EventServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EventServiceServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "ngxconfig/v1/events.proto",
}

func RegisterEventServiceServer(s grpc.ServiceRegistrar, srv EventServiceServer) {
	s.RegisterService(&EventServiceDesc, srv)
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(EventServiceServer).Subscribe(req, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// SubscribeEvents opens the event stream on cc. With no sources every event
// is delivered.
func SubscribeEvents(ctx context.Context, cc grpc.ClientConnInterface, sources ...string) (grpc.ServerStreamingClient[structpb.Struct], error) {
	list := make([]any, len(sources))
	for i, s := range sources {
		list[i] = s
	}
	req, err := structpb.NewStruct(map[string]any{"sources": list})
	if err != nil {
		return nil, err
	}

	stream, err := cc.NewStream(ctx, &EventServiceDesc.Streams[0], subscribeMethod)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type EventService struct {
	streamer *EventStreamer
	logger   *zap.Logger
}

func NewEventService(streamer *EventStreamer, logger *zap.Logger) *EventService {
	return &EventService{streamer: streamer, logger: logger}
}

func (s *EventService) Subscribe(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	var sources []string
	if v, ok := req.GetFields()["sources"]; ok {
		for _, item := range v.GetListValue().GetValues() {
			if src := item.GetStringValue(); src != "" {
				sources = append(sources, src)
			}
		}
	}

	eventCh := s.streamer.Subscribe(sources...)
	defer s.streamer.Unsubscribe(eventCh)

	s.logger.Debug("Event stream opened", zap.Strings("sources", sources))

	for {
		select {
		case event, ok := <-eventCh:
			if !ok {
				return nil
			}

			msg, err := ToStruct(event)
			if err != nil {
				s.logger.Warn("Event not encodable", zap.String("type", event.Type), zap.Error(err))
				continue
			}
			if err := stream.Send(msg); err != nil {
				return err
			}

		case <-stream.Context().Done():
			return stream.Context().Err()
		}
	}
}

// ToStruct converts an event through its JSON form.
func ToStruct(ev Event) (*structpb.Struct, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	msg := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, msg); err != nil {
		return nil, fmt.Errorf("convert event: %w", err)
	}
	return msg, nil
}

// FromStruct is the inverse of ToStruct. Data comes back as generic JSON
// values.
func FromStruct(msg *structpb.Struct) (Event, error) {
	fields := msg.GetFields()
	ev := Event{
		Source: fields["source"].GetStringValue(),
		Type:   fields["type"].GetStringValue(),
	}
	if ts := fields["timestamp"].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return ev, fmt.Errorf("timestamp: %w", err)
		}
		ev.Timestamp = t
	}
	if d, ok := fields["data"]; ok {
		ev.Data = d.AsInterface()
	}
	return ev, nil
}
