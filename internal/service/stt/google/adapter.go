// Package google provides a Google Cloud Speech-to-Text adapter.
package google

import (
	"context"
	"errors"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"voice-search-assistant/internal/service/stt"
)

// Config holds Google STT configuration.
type Config struct {
	LanguageCode    string
	SampleRateHz    int32
	InterimResults  bool
	AudioEncoding   string
	SingleUtterance bool
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		LanguageCode:    "en-US",
		SampleRateHz:    8000,
		InterimResults:  true,
		AudioEncoding:   "LINEAR16",
		SingleUtterance: true,
	}
}

// parseAudioEncoding converts string encoding name to protobuf enum.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch encoding {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}

// errorCode maps a stream error to a recognition error code.
func errorCode(err error) string {
	if errors.Is(err, context.Canceled) {
		return stt.CodeAborted
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return stt.CodeNoSpeech
	}
	switch status.Code(err) {
	case codes.Canceled:
		return stt.CodeAborted
	case codes.DeadlineExceeded, codes.OutOfRange:
		return stt.CodeNoSpeech
	case codes.PermissionDenied, codes.Unauthenticated:
		return stt.CodeNotAllowed
	case codes.ResourceExhausted:
		return stt.CodeServiceNotAllowed
	case codes.InvalidArgument:
		return stt.CodeLanguageNotSupported
	default:
		return stt.CodeNetwork
	}
}

// Adapter implements stt.Adapter using Google Cloud Speech-to-Text.
type Adapter struct {
	client    *speech.Client
	ownClient bool
	cfg       Config

	mu      sync.Mutex
	stream  speechpb.Speech_StreamingRecognizeClient
	cancel  context.CancelFunc
	cb      stt.Callback
	halfEnd bool
}

// New creates a new Google STT adapter with its own client.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Adapter{client: c, ownClient: true, cfg: cfg}, nil
}

// NewWithClient creates an adapter sharing an existing client.
func NewWithClient(client *speech.Client, cfg Config) *Adapter {
	return &Adapter{client: client, cfg: cfg}
}

// Factory returns an stt.Factory that opens one stream per recognition
// session on a shared client. The session language overrides cfg.LanguageCode.
func Factory(client *speech.Client, cfg Config) stt.Factory {
	return func(ctx context.Context, language string) (stt.Adapter, error) {
		c := cfg
		if language != "" {
			c.LanguageCode = language
		}
		return NewWithClient(client, c), nil
	}
}

// Start begins a streaming recognition session, sends the initial config and
// starts receiving results.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := a.client.StreamingRecognize(streamCtx)
	if err != nil {
		cancel()
		return err
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   parseAudioEncoding(a.cfg.AudioEncoding),
					SampleRateHertz:            a.cfg.SampleRateHz,
					LanguageCode:               a.cfg.LanguageCode,
					EnableAutomaticPunctuation: true,
				},
				InterimResults:  a.cfg.InterimResults,
				SingleUtterance: a.cfg.SingleUtterance,
			},
		},
	})
	if err != nil {
		cancel()
		return err
	}

	a.mu.Lock()
	a.stream = stream
	a.cancel = cancel
	a.cb = cb
	a.mu.Unlock()

	cb.OnStart()
	go a.listen(stream, cb)
	return nil
}

// SendAudio sends audio bytes to Google Speech-to-Text.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	stream := a.stream
	halfEnd := a.halfEnd
	a.mu.Unlock()

	if stream == nil || halfEnd {
		return nil
	}
	return stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Stop half-closes the stream. Google sends the remaining final results and
// then io.EOF, which ends the session.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closeSendLocked()
}

// Close aborts the stream and releases the client when owned.
func (a *Adapter) Close() error {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if a.ownClient {
		return a.client.Close()
	}
	return nil
}

func (a *Adapter) closeSendLocked() error {
	if a.stream == nil || a.halfEnd {
		return nil
	}
	a.halfEnd = true
	return a.stream.CloseSend()
}

// listen receives responses and reports the cumulative result list: finals
// seen so far followed by the current interim results.
func (a *Adapter) listen(stream speechpb.Speech_StreamingRecognizeClient, cb stt.Callback) {
	var finals []stt.Result
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			cb.OnEnd()
			return
		}
		if err != nil {
			code := errorCode(err)
			log.Debug().Err(err).Str("code", code).Str("language", a.cfg.LanguageCode).Msg("Google STT stream error")
			cb.OnError(code)
			cb.OnEnd()
			return
		}

		if resp.SpeechEventType == speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE {
			a.mu.Lock()
			if err := a.closeSendLocked(); err != nil {
				log.Debug().Err(err).Msg("CloseSend after end of utterance failed")
			}
			a.mu.Unlock()
		}

		if len(resp.Results) == 0 {
			continue
		}

		var interim []stt.Result
		for _, r := range resp.Results {
			res := convertResult(r)
			if len(res.Alternatives) == 0 {
				continue
			}
			if res.IsFinal {
				finals = append(finals, res)
			} else {
				interim = append(interim, res)
			}
		}

		all := make([]stt.Result, 0, len(finals)+len(interim))
		all = append(all, finals...)
		all = append(all, interim...)
		cb.OnResult(all)
	}
}

func convertResult(r *speechpb.StreamingRecognitionResult) stt.Result {
	res := stt.Result{IsFinal: r.GetIsFinal()}
	for _, alt := range r.GetAlternatives() {
		res.Alternatives = append(res.Alternatives, stt.Alternative{
			Transcript: alt.GetTranscript(),
			Confidence: float64(alt.GetConfidence()),
		})
	}
	return res
}
