// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

// Package plots draws SVG diagnostics of run mapping and matching
package plots

import (
	"errors"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/524D/mzamt/internal/regress"
)

// ErrNoData means there is nothing to plot
var ErrNoData = errors.New("plots: no data")

var (
	blue = color.RGBA{R: 50, G: 100, B: 200, A: 255}
	red  = color.RGBA{R: 200, G: 50, B: 50, A: 255}
	grey = color.RGBA{R: 150, G: 150, B: 150, A: 255}
)

const (
	width  = 8 * vg.Inch
	height = 6 * vg.Inch
)

func writeSVG(w io.Writer, p *plot.Plot) error {
	wt, err := p.WriterTo(width, height, "svg")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

func xys(xs, ys []float64) plotter.XYs {
	pts := make(plotter.XYs, len(xs))
	for i := range xs {
		pts[i].X = xs[i]
		pts[i].Y = ys[i]
	}
	return pts
}

// TimeHydrophobicity plots the (time, hydrophobicity) pairs of a run.
// When coef is not empty, the mapping polynomial is drawn over the time
// range of the pairs.
func TimeHydrophobicity(w io.Writer, title string, times, hs []float64, coef []float64) error {
	if len(times) == 0 || len(times) != len(hs) {
		return ErrNoData
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Elution time (s)"
	p.Y.Label.Text = "Hydrophobicity"
	p.Add(plotter.NewGrid())

	s, err := plotter.NewScatter(xys(times, hs))
	if err != nil {
		return err
	}
	s.GlyphStyle.Color = blue
	s.GlyphStyle.Radius = vg.Points(1.5)
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	p.Add(s)
	p.Legend.Add("Mass matches", s)

	if len(coef) > 0 {
		tMin, tMax := times[0], times[0]
		for _, t := range times {
			tMin = min(tMin, t)
			tMax = max(tMax, t)
		}
		f := plotter.NewFunction(func(t float64) float64 { return regress.Polyval(coef, t) })
		f.XMin = tMin
		f.XMax = tMax
		f.Samples = 200
		f.LineStyle.Color = red
		f.LineStyle.Width = vg.Points(2)
		p.Add(f)
		p.Legend.Add("Mapping", f)
	}
	p.Legend.Top = true
	p.Legend.Left = true
	return writeSVG(w, p)
}

// MatchErrors plots mass error against elution error of matched pairs.
// Pairs with accepted[i] set are drawn in a separate color.
func MatchErrors(w io.Writer, title, massUnit string, massErr, elutionErr []float64, accepted []bool) error {
	if len(massErr) == 0 || len(massErr) != len(elutionErr) {
		return ErrNoData
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Mass error (" + massUnit + ")"
	p.Y.Label.Text = "Elution error (hydrophobicity)"
	p.Add(plotter.NewGrid())

	var inX, inY, outX, outY []float64
	for i := range massErr {
		if i < len(accepted) && accepted[i] {
			inX = append(inX, massErr[i])
			inY = append(inY, elutionErr[i])
		} else {
			outX = append(outX, massErr[i])
			outY = append(outY, elutionErr[i])
		}
	}
	add := func(xs, ys []float64, c color.Color, name string) error {
		if len(xs) == 0 {
			return nil
		}
		s, err := plotter.NewScatter(xys(xs, ys))
		if err != nil {
			return err
		}
		s.GlyphStyle.Color = c
		s.GlyphStyle.Radius = vg.Points(1.5)
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(s)
		p.Legend.Add(name, s)
		return nil
	}
	if err := add(outX, outY, grey, "Other matches"); err != nil {
		return err
	}
	if err := add(inX, inY, blue, "Accepted matches"); err != nil {
		return err
	}
	p.Legend.Top = true
	return writeSVG(w, p)
}
