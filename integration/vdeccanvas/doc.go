// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package vdeccanvas presents vdec frames in gogpu windows.
//
// A Player is the consumer side of a vdec.Decoder. Every window frame it
// acquires decoded frames until the newest one reaches the playback clock,
// reads it back and hands it to the window as a texture. The data flow is:
//
//	Decoder (GPU image) -> Reader (CPU) -> gogpu Texture -> Window
//
// # Usage
//
//	player, err := vdeccanvas.New(dec, dev)
//	if err != nil {
//	    return err
//	}
//	defer player.Close()
//
//	app.OnDraw(func(dc *gogpu.Context) {
//	    player.Update(ctx, time.Since(start).Seconds())
//	    player.RenderTo(dc.AsTextureDrawer())
//	})
//
// # Clock
//
// With an audio stream the player follows the decoder's smoothed audio
// clock. Without one it follows the host time passed to Update, offset so
// playback starts at the first update and at every Seek.
//
// # Thread Safety
//
// Player is NOT safe for concurrent use. Call it from the draw goroutine.
package vdeccanvas
