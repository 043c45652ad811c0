package proc

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/leeineian/jukebox/sys"
)

const (
	opusSampleRate = 48000
	opusFrameSize  = 960
	opusBitRate    = 192000
)

// StreamProvider hands encoded Opus frames to the voice connection.
type StreamProvider struct {
	frames   chan []byte
	OnFinish func()
	once     sync.Once
	ctx      context.Context
}

func NewStreamProvider(ctx context.Context) *StreamProvider {
	return &StreamProvider{frames: make(chan []byte, 100), ctx: ctx}
}

func (p *StreamProvider) Close() {
	p.once.Do(func() {
		if p.OnFinish != nil {
			p.OnFinish()
		}
	})
}

// PushFrame queues a frame. A nil frame marks the end of the stream.
func (p *StreamProvider) PushFrame(f []byte) {
	select {
	case p.frames <- f:
	case <-p.ctx.Done():
	}
}

func (p *StreamProvider) ProvideOpusFrame() ([]byte, error) {
	select {
	case f := <-p.frames:
		if f == nil {
			p.Close()
			return nil, io.EOF
		}
		return f, nil
	case <-p.ctx.Done():
		p.Close()
		return nil, io.EOF
	case <-time.After(100 * time.Millisecond):
		return nil, nil // Silence
	}
}

// AstiavTranscoder decodes any audio input and re-encodes it as 48kHz stereo Opus.
type AstiavTranscoder struct {
	inputCtx               *astiav.FormatContext
	decoderCtx, encoderCtx *astiav.CodecContext
	audioStreamIndex       int
	packet                 *astiav.Packet
	frame                  *astiav.Frame
	resampleCtx            *astiav.SoftwareResampleContext
	resampleFrame          *astiav.Frame
	fifo                   *astiav.AudioFifo
	reader                 io.Reader
	onFrame                func([]byte)
	pts                    int64
}

func NewAstiavTranscoder() *AstiavTranscoder {
	return &AstiavTranscoder{
		packet:        astiav.AllocPacket(),
		frame:         astiav.AllocFrame(),
		resampleFrame: astiav.AllocFrame(),
	}
}

// Position reports how much audio has been encoded so far.
func (t *AstiavTranscoder) Position() time.Duration {
	return time.Duration(atomic.LoadInt64(&t.pts)) * time.Second / opusSampleRate
}

// OpenInput reads from r when it is set, otherwise opens the input path or URL.
func (t *AstiavTranscoder) OpenInput(in string, r io.Reader) error {
	t.inputCtx = astiav.AllocFormatContext()
	if t.inputCtx == nil {
		return errors.New("failed to alloc ctx")
	}
	if r != nil {
		t.reader = r
		seekFunc := func(offset int64, whence int) (int64, error) {
			return 0, errors.New("seek not supported")
		}
		if s, ok := r.(io.Seeker); ok {
			seekFunc = s.Seek
		}

		ioCtx, err := astiav.AllocIOContext(16*1024, false, func(b []byte) (int, error) {
			return t.reader.Read(b)
		}, seekFunc, nil)
		if err != nil {
			return err
		}
		t.inputCtx.SetPb(ioCtx)
		t.inputCtx.SetFlags(t.inputCtx.Flags().Add(astiav.FormatContextFlagCustomIo))

		opts := astiav.NewDictionary()
		defer opts.Free()
		_ = opts.Set("probesize", "10000000", 0)
		_ = opts.Set("analyzeduration", "10000000", 0)

		if err := t.inputCtx.OpenInput("", nil, opts); err != nil {
			return err
		}
	} else if err := t.inputCtx.OpenInput(in, nil, nil); err != nil {
		return err
	}

	if err := t.inputCtx.FindStreamInfo(nil); err != nil {
		return err
	}
	t.audioStreamIndex = -1
	for _, s := range t.inputCtx.Streams() {
		if s.CodecParameters().MediaType() == astiav.MediaTypeAudio {
			t.audioStreamIndex = s.Index()
			break
		}
	}
	if t.audioStreamIndex == -1 {
		return errors.New("no audio")
	}
	return nil
}

func (t *AstiavTranscoder) SetupDecoder() error {
	p := t.inputCtx.Streams()[t.audioStreamIndex].CodecParameters()
	d := astiav.FindDecoder(p.CodecID())
	if d == nil {
		return errors.New("no decoder")
	}
	t.decoderCtx = astiav.AllocCodecContext(d)
	_ = p.ToCodecContext(t.decoderCtx)
	return t.decoderCtx.Open(d, nil)
}

func (t *AstiavTranscoder) SetupEncoder() error {
	e := astiav.FindEncoderByName("libopus")
	if e == nil {
		e = astiav.FindEncoder(astiav.CodecIDOpus)
	}
	if e == nil {
		return errors.New("no encoder")
	}
	t.encoderCtx = astiav.AllocCodecContext(e)
	t.encoderCtx.SetBitRate(opusBitRate)
	t.encoderCtx.SetSampleRate(opusSampleRate)
	t.encoderCtx.SetChannelLayout(astiav.ChannelLayoutStereo)
	t.encoderCtx.SetSampleFormat(astiav.SampleFormatS16)
	t.encoderCtx.SetTimeBase(astiav.NewRational(1, opusSampleRate))
	o := astiav.NewDictionary()
	defer o.Free()
	_ = o.Set("vbr", "on", 0)
	_ = o.Set("compression_level", "10", 0)
	_ = o.Set("frame_size", "20", 0)
	if err := t.encoderCtx.Open(e, o); err != nil {
		return err
	}
	// The resampler configures itself from the first decoded frame.
	t.resampleCtx = astiav.AllocSoftwareResampleContext()
	if t.resampleCtx == nil {
		return errors.New("failed to allocate resampler")
	}
	return nil
}

// Transcode pumps the input until EOF or ctx cancellation, handing every Opus
// packet to on. A final nil marks the end of the stream.
func (t *AstiavTranscoder) Transcode(ctx context.Context, on func([]byte)) error {
	defer t.packet.Unref()
	t.onFrame = on
	defer func() {
		if t.onFrame != nil {
			t.onFrame(nil)
		}
	}()
	t.fifo = astiav.AllocAudioFifo(t.encoderCtx.SampleFormat(), t.encoderCtx.ChannelLayout().Channels(), opusFrameSize*2)
	defer func() {
		if t.fifo != nil {
			t.fifo.Free()
			t.fifo = nil
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.inputCtx.ReadFrame(t.packet); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				break
			}
			return err
		}
		if t.packet.StreamIndex() != t.audioStreamIndex {
			t.packet.Unref()
			continue
		}
		if err := t.decoderCtx.SendPacket(t.packet); err != nil {
			t.packet.Unref()
			return err
		}
		t.packet.Unref()
		for t.decoderCtx.ReceiveFrame(t.frame) == nil {
			t.resampleIntoFifo()
			for t.fifo.Size() >= opusFrameSize {
				t.encodeFromFifo(opusFrameSize)
			}
			t.frame.Unref()
		}
	}

	if t.decoderCtx != nil {
		_ = t.decoderCtx.SendPacket(nil)
		for t.decoderCtx.ReceiveFrame(t.frame) == nil {
			t.resampleIntoFifo()
			t.frame.Unref()
		}
	}
	for t.fifo != nil && t.fifo.Size() > 0 {
		t.encodeFromFifo(min(opusFrameSize, t.fifo.Size()))
	}
	if t.encoderCtx != nil {
		_ = t.encoderCtx.SendFrame(nil)
		t.drainEncoder()
	}
	return nil
}

func (t *AstiavTranscoder) prepareResampleFrame(nb int) {
	t.resampleFrame.Unref()
	t.resampleFrame.SetNbSamples(nb)
	t.resampleFrame.SetChannelLayout(t.encoderCtx.ChannelLayout())
	t.resampleFrame.SetSampleFormat(t.encoderCtx.SampleFormat())
	t.resampleFrame.SetSampleRate(t.encoderCtx.SampleRate())
	_ = t.resampleFrame.AllocBuffer(0)
}

func (t *AstiavTranscoder) resampleIntoFifo() {
	nb := int(astiav.RescaleQ(int64(t.frame.NbSamples()), astiav.NewRational(1, t.frame.SampleRate()), astiav.NewRational(1, t.encoderCtx.SampleRate())))
	if nb <= 0 {
		return
	}
	t.prepareResampleFrame(nb)
	if err := t.resampleCtx.ConvertFrame(t.frame, t.resampleFrame); err != nil {
		sys.LogDebug(sys.MsgVoiceTranscodeFail, "resample", err)
		return
	}
	_, _ = t.fifo.Write(t.resampleFrame)
}

func (t *AstiavTranscoder) encodeFromFifo(n int) {
	t.prepareResampleFrame(n)
	_, _ = t.fifo.Read(t.resampleFrame)
	t.resampleFrame.SetPts(atomic.LoadInt64(&t.pts))
	atomic.AddInt64(&t.pts, int64(n))
	if err := t.encoderCtx.SendFrame(t.resampleFrame); err != nil {
		return
	}
	t.drainEncoder()
}

func (t *AstiavTranscoder) drainEncoder() {
	for {
		p := astiav.AllocPacket()
		if t.encoderCtx.ReceivePacket(p) != nil {
			p.Free()
			return
		}
		if t.onFrame != nil {
			d := p.Data()
			fd := make([]byte, len(d))
			copy(fd, d)
			t.onFrame(fd)
		}
		p.Free()
	}
}

func (t *AstiavTranscoder) Close() {
	if t.resampleCtx != nil {
		t.resampleCtx.Free()
	}
	if t.resampleFrame != nil {
		t.resampleFrame.Free()
	}
	if t.packet != nil {
		t.packet.Free()
	}
	if t.frame != nil {
		t.frame.Free()
	}
	if t.decoderCtx != nil {
		t.decoderCtx.Free()
	}
	if t.encoderCtx != nil {
		t.encoderCtx.Free()
	}
	if t.inputCtx != nil {
		t.inputCtx.CloseInput()
		t.inputCtx.Free()
	}
}
