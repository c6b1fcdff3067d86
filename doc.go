// Package vdec decodes media files into GPU images paced against audio
// playback.
//
// # Overview
//
// A Decoder runs one decode goroutine per playing file. The goroutine
// demultiplexes the container, decodes video and audio, and hands every
// decoded picture to an upload task that copies its planes to the device
// and converts them to an sRGB image. Finished images wait in a small
// frame pool until the consumer acquires them. Decoded audio goes to a
// lock-free ring that a real-time mixer drains.
//
// # Quick Start
//
//	mix := mixer.NewSoftware(48000, 2, 512)
//	dec, err := vdec.Open("clip.y4m", vdec.WithMixer(mix))
//	if err != nil {
//	    return err
//	}
//	defer dec.Close()
//
//	dec.BeginDeviceContext(software.NewDevice(), nil)
//	dec.Play()
//
//	for {
//	    f, err := dec.AcquireVideoFrame(ctx)
//	    if errors.Is(err, vdec.ErrEndOfStream) {
//	        break
//	    }
//	    f.Token.Wait(ctx)
//	    draw(f.Image)
//	    dec.ReleaseVideoFrame(f.Index, nil)
//	}
//
// # Pacing
//
// The decode goroutine only runs ahead as far as the frame pool and the
// audio ring allow. It decodes when audio runs low, when the consumer is
// blocked waiting for a frame, or when a slot is idle. A consumer that
// blocks while every slot holds an unpresented frame makes the decoder
// overwrite the oldest one; Stats reports these drops.
//
// # Presentation
//
// EstimatedAudioPlaybackTimestamp returns a smoothed audio clock. A
// consumer typically acquires frames until the frame PTS passes that
// clock, presenting the last one.
//
// # Devices
//
// The decoder renders through a gpu.Device supplied with
// BeginDeviceContext: gpu/software keeps images in host memory, gpu/wgpu
// mirrors them into gogpu/wgpu textures.
//
// # Logging
//
// vdec is silent by default. SetLogger enables structured logging for all
// decoders.
package vdec
