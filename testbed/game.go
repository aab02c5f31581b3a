package testbed

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/charmbracelet/log"
	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/rhi/engine/config"
	"github.com/spaghettifunk/rhi/engine/core"
	"github.com/spaghettifunk/rhi/engine/renderer"
	"github.com/spaghettifunk/rhi/engine/renderer/metadata"
	"github.com/spaghettifunk/rhi/engine/renderer/recorder"
	"github.com/spaghettifunk/rhi/engine/renderer/vulkan"
	"github.com/spaghettifunk/rhi/engine/resources"
)

const (
	width  = 1280
	height = 720
	format = gputypes.TextureFormatRGBA8Unorm

	VertexShaderPath   = "shaders/vert.spv"
	FragmentShaderPath = "shaders/frag.spv"
)

// Testbed drives a device through a frame that exercises the binding
// engine: a draw on the immediate context, clears recorded by a pool of
// deferred contexts and executed on the immediate one, and the destruction
// of a bound resource.
type Testbed struct {
	cfg *config.Config
	log *log.Logger

	dev     *renderer.Device
	backend *vulkan.Backend

	target   *resources.Texture
	rtv      *resources.TextureView
	offscr   *resources.Texture
	offRTV   *resources.TextureView
	frame    *resources.Buffer
	pso      *resources.PipelineState
	srb      *resources.ShaderResourceBinding
	pool     *renderer.RecordingPool

	// native objects of the vulkan backend
	images   []*vulkan.Image
	buffer   *vulkan.Buffer
	pipeline *vulkan.Pipeline
	canDraw  bool
}

func New(cfg *config.Config) (*Testbed, error) {
	tb := &Testbed{
		cfg: cfg,
		log: core.Logger("app", "testbed", "backend", cfg.Backend.Type),
	}

	var (
		immediate renderer.NativeContext
		factory   renderer.DeferredFactory
		allocator resources.HandleAllocator
	)
	switch cfg.Backend.Type {
	case config.BackendVulkan:
		backend, err := vulkan.NewBackend(vulkan.ConfigFrom("RHI testbed", cfg.Backend))
		if err != nil {
			return nil, err
		}
		tb.backend = backend
		ctx, err := backend.NewContext("immediate", false)
		if err != nil {
			backend.Shutdown()
			return nil, err
		}
		immediate, factory, allocator = ctx, backend.DeferredFactory(), backend.Registry
	default:
		immediate = recorder.New("immediate", false)
		factory = func(index int) (renderer.NativeContext, error) {
			return recorder.New(fmt.Sprintf("deferred-%d", index), true), nil
		}
		tb.canDraw = true
	}

	dev, err := renderer.NewDevice(cfg, immediate, factory, allocator)
	if err != nil {
		tb.shutdownBackend()
		return nil, err
	}
	tb.dev = dev
	if tb.backend != nil {
		tb.backend.Registry.Watch(dev.Bus())
	}

	if err := tb.createResources(); err != nil {
		tb.Shutdown()
		return nil, err
	}
	return tb, nil
}

func (tb *Testbed) Device() *renderer.Device {
	return tb.dev
}

func (tb *Testbed) createResources() error {
	res := tb.dev.Resources()
	var err error

	tb.target, err = res.CreateTexture(resources.TextureDesc{
		Name: "backbuffer", Width: width, Height: height, Format: format,
		BindFlags: metadata.BIND_RENDER_TARGET | metadata.BIND_SHADER_RESOURCE,
	})
	if err != nil {
		return err
	}
	if tb.rtv, err = res.CreateTextureView(tb.target, metadata.VIEW_TYPE_RENDER_TARGET, format); err != nil {
		return err
	}
	tb.offscr, err = res.CreateTexture(resources.TextureDesc{
		Name: "offscreen", Width: width / 2, Height: height / 2, Format: format,
		BindFlags: metadata.BIND_RENDER_TARGET,
	})
	if err != nil {
		return err
	}
	if tb.offRTV, err = res.CreateTextureView(tb.offscr, metadata.VIEW_TYPE_RENDER_TARGET, format); err != nil {
		return err
	}
	tb.frame, err = res.CreateBuffer(resources.BufferDesc{Name: "frame", Size: 16, BindFlags: metadata.BIND_UNIFORM_BUFFER})
	if err != nil {
		return err
	}

	vs, err := res.CreateShader("triangle.vert", metadata.SHADER_TYPE_VERTEX)
	if err != nil {
		return err
	}
	ps, err := res.CreateShader("triangle.frag", metadata.SHADER_TYPE_PIXEL)
	if err != nil {
		return err
	}
	desc := metadata.PipelineStateDesc{
		Name: "triangle",
		ResourceLayout: []metadata.ResourceBinding{
			{Name: "Frame", Stage: metadata.SHADER_TYPE_VERTEX, Category: metadata.CATEGORY_CONSTANT_BUFFER, Slot: 0, Count: 1},
		},
	}
	desc.Graphics.Shaders[metadata.SHADER_TYPE_VERTEX] = vs
	desc.Graphics.Shaders[metadata.SHADER_TYPE_PIXEL] = ps
	desc.Graphics.PrimitiveTopology = gputypes.PrimitiveTopologyTriangleList
	desc.Graphics.RTVFormats = []gputypes.TextureFormat{format}
	if tb.pso, err = res.CreatePipelineState(desc); err != nil {
		return err
	}
	tb.srb = tb.pso.CreateShaderResourceBinding()
	if err := tb.srb.SetByName("Frame", 0, tb.frame); err != nil {
		return err
	}

	if tb.backend != nil {
		if err := tb.createNative(); err != nil {
			return err
		}
	}

	if n := tb.cfg.Device.DeferredContexts; n > 0 {
		tb.pool, err = tb.dev.NewRecordingPool(n)
	}
	return err
}

// createNative creates the Vulkan objects behind the handles of the
// device objects. The pipeline needs the SPIR-V of `mage build:shaders`,
// without it frames only clear.
func (tb *Testbed) createNative() error {
	device := tb.backend.Device
	for _, target := range []struct {
		view          *resources.TextureView
		width, height uint32
	}{
		{tb.rtv, width, height},
		{tb.offRTV, width / 2, height / 2},
	} {
		img, err := vulkan.NewRenderTarget(device, target.width, target.height, format)
		if err != nil {
			return err
		}
		tb.images = append(tb.images, img)
		if err := tb.backend.AttachImage(target.view.NativeHandle(), img); err != nil {
			return err
		}
	}

	buffer, err := vulkan.NewBuffer(device, tb.frame.Size())
	if err != nil {
		return err
	}
	tb.buffer = buffer
	if err := tb.backend.AttachBuffer(tb.frame.NativeHandle(), buffer); err != nil {
		return err
	}

	vert, errVert := os.ReadFile(VertexShaderPath)
	frag, errFrag := os.ReadFile(FragmentShaderPath)
	if err := errors.Join(errVert, errFrag); err != nil {
		tb.log.Warn("shaders not built, frames will only clear", "err", err)
		return nil
	}
	var targets vulkan.RenderpassFormats
	targets.Colors[0], _ = vulkan.TextureFormat(format)
	targets.NumColor = 1
	tb.pipeline, err = vulkan.NewGraphicsPipeline(device, tb.backend.Layouts, &vulkan.GraphicsPipelineConfig{
		Stages: map[metadata.ShaderType][]byte{
			metadata.SHADER_TYPE_VERTEX: vert,
			metadata.SHADER_TYPE_PIXEL:  frag,
		},
		Topology: gputypes.PrimitiveTopologyTriangleList,
		Targets:  targets,
	})
	if err != nil {
		return err
	}
	if err := tb.backend.AttachPipeline(tb.pso.NativeHandle(), tb.pipeline); err != nil {
		return err
	}
	tb.canDraw = true
	return nil
}

// tint is the color of frame n.
func tint(n int) [4]float32 {
	t := float64(n) / 60
	return [4]float32{
		float32(0.5 + 0.5*math.Sin(t)),
		float32(0.5 + 0.5*math.Sin(t+2)),
		float32(0.5 + 0.5*math.Sin(t+4)),
		1,
	}
}

// Frame renders frame n and submits it.
func (tb *Testbed) Frame(n int) error {
	// Offscreen clear on a deferred context, executed before the main pass.
	if tb.pool != nil {
		err := tb.pool.Record(func(ctx *renderer.DeviceContext) error {
			if err := ctx.SetRenderTargets([]metadata.TextureView{tb.offRTV}, nil); err != nil {
				return err
			}
			return ctx.ClearRenderTarget(tb.offRTV, [4]float32{0, 0, 0, 1})
		})
		if err != nil {
			return err
		}
		if _, err := tb.dev.ExecutePending(); err != nil {
			return err
		}
	}

	ctx := tb.dev.ImmediateContext()
	if err := ctx.SetRenderTargets([]metadata.TextureView{tb.rtv}, nil); err != nil {
		return err
	}
	if err := ctx.ClearRenderTarget(tb.rtv, [4]float32{0, 0, 0.2, 1}); err != nil {
		return err
	}
	if tb.canDraw {
		if tb.buffer != nil {
			color := tint(n)
			data := make([]byte, 16)
			for i, c := range color {
				binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(c))
			}
			if err := tb.buffer.Upload(tb.backend.Device, data); err != nil {
				return err
			}
		}
		if err := ctx.SetPipelineState(tb.pso); err != nil {
			return err
		}
		if err := ctx.CommitShaderResources(tb.srb, metadata.COMMIT_SHADER_RESOURCES_FLAG_TRANSITION_RESOURCES); err != nil {
			return err
		}
		if err := ctx.Draw(metadata.DrawAttribs{NumVertices: 3}); err != nil {
			return err
		}
	}
	if err := ctx.Flush(); err != nil {
		return err
	}
	return tb.dev.FinishFrame()
}

// Stats logs the commit statistics gathered so far.
func (tb *Testbed) Stats() core.CommitStats {
	total := tb.dev.Metrics().Total
	tb.log.Info("commit stats",
		"native", total.NativeCalls,
		"skipped", total.SkippedSlots,
		"unbound", total.UnboundSlots,
		"draws", total.Draws,
		"fps", tb.dev.Metrics().FPS,
	)
	return total
}

func (tb *Testbed) Shutdown() error {
	var err error
	if tb.pool != nil {
		tb.pool.Shutdown()
		tb.pool = nil
	}
	if tb.dev != nil {
		if tb.target != nil {
			// unbinds the render target from every context
			tb.dev.Resources().DestroyTexture(tb.target)
		}
		err = tb.dev.Shutdown()
		tb.dev = nil
	}
	tb.shutdownBackend()
	return err
}

func (tb *Testbed) shutdownBackend() {
	if tb.backend == nil {
		return
	}
	device := tb.backend.Device
	if device != nil {
		if err := device.WaitIdle(); err != nil {
			tb.log.Warn("waiting for the device", "err", err)
		}
		if tb.pipeline != nil {
			tb.pipeline.Destroy(device)
		}
		if tb.buffer != nil {
			tb.buffer.Destroy(device)
		}
		for _, img := range tb.images {
			img.Destroy(device)
		}
	}
	tb.backend.Shutdown()
	tb.backend = nil
}
