package usecase

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"

	"github.com/user/cardshot/internal/entity"
	"github.com/user/cardshot/pkg/utils"
)

// Keys of a raw image record with a fixed meaning. Every other key is template data.
const (
	keyTemplate   = "template"
	keyHTML       = "html"
	keyWidth      = "width"
	keyHeight     = "height"
	keyQuality    = "quality"
	keyBackground = "background"
	keyPath       = "path"
	keyData       = "data"
)

// Resolve merges the global defaults with each raw image record, in order.
// Record keys win over globals. An empty rawImages yields an empty list.
func Resolve(global entity.GlobalOptions, rawImages []map[string]any) ([]entity.ImageJob, error) {
	jobs := make([]entity.ImageJob, 0, len(rawImages))
	for i, raw := range rawImages {
		job, err := resolveOne(global, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: image %d: %w", entity.ErrConfig, i+1, err)
		}
		job.Index = i
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func resolveOne(global entity.GlobalOptions, raw map[string]any) (entity.ImageJob, error) {
	job := entity.ImageJob{
		Template:   entity.TemplateRef{Path: global.Template, Inline: global.TemplateHTML},
		Width:      global.Width,
		Height:     global.Height,
		Quality:    global.Quality,
		Background: global.Background,
		Data:       make(map[string]any, len(global.Data)+len(raw)),
	}
	for k, v := range global.Data {
		job.Data[k] = v
	}

	// A record naming either template form replaces both global forms.
	_, hasPath := raw[keyTemplate]
	_, hasInline := raw[keyHTML]
	if hasPath || hasInline {
		job.Template = entity.TemplateRef{}
	}

	var extra map[string]any
	for k, v := range raw {
		var err error
		switch k {
		case keyTemplate:
			job.Template.Path, err = asString(k, v)
		case keyHTML:
			job.Template.Inline, err = asString(k, v)
		case keyWidth:
			job.Width, err = asInt(k, v)
		case keyHeight:
			job.Height, err = asInt(k, v)
		case keyQuality:
			job.Quality, err = asInt(k, v)
		case keyBackground:
			job.Background, err = asBool(k, v)
		case keyPath:
			job.Path, err = asString(k, v)
		case keyData:
			extra, err = asMap(k, v)
		default:
			job.Data[k] = v
		}
		if err != nil {
			return entity.ImageJob{}, err
		}
	}
	for k, v := range extra {
		job.Data[k] = v
	}

	return job, validate(job)
}

func validate(job entity.ImageJob) error {
	switch {
	case job.Template.IsZero():
		return fmt.Errorf("no template given")
	case job.Template.Path != "" && job.Template.Inline != "":
		return fmt.Errorf("both %q and %q given", keyTemplate, keyHTML)
	case strings.TrimSpace(job.Path) == "":
		return fmt.Errorf("no output %q given", keyPath)
	case job.Width <= 0:
		return fmt.Errorf("width must be a positive integer, got %d", job.Width)
	case job.Height <= 0:
		return fmt.Errorf("height must be a positive integer, got %d", job.Height)
	case job.Quality < 0 || job.Quality > 100:
		return fmt.Errorf("quality must be within [0,100], got %d", job.Quality)
	}
	if _, err := utils.FormatFromPath(job.Path); err != nil {
		return fmt.Errorf("%s: %w", job.Path, err)
	}
	return nil
}

func asString(key string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%q must be a string, got %T", key, v)
	}
	return s, nil
}

// asBool and asInt coerce the way the global options do, so a value spelled
// "800" or "false" means the same in a record as on the command line.
func asBool(key string, v any) (bool, error) {
	b, err := cast.ToBoolE(v)
	if err != nil || v == nil {
		return false, fmt.Errorf("%q must be a boolean, got %v", key, v)
	}
	return b, nil
}

func asInt(key string, v any) (int, error) {
	switch v {
	case nil, true, false, "":
		return 0, fmt.Errorf("%q must be an integer, got %v", key, v)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("%q must be an integer, got %v", key, v)
	}
	return int(f), nil
}

func asMap(key string, v any) (map[string]any, error) {
	switch m := v.(type) {
	case map[string]any:
		return m, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("%q must be a mapping, got %T", key, v)
	}
}
