package services

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"news-faces/metrics"
	"news-faces/providers"
)

// ImageHost legt ein gefundenes Bild dauerhaft ab und liefert die neue URL.
type ImageHost interface {
	Host(ctx context.Context, personName, sourceURL string) (string, error)
}

// ImageResolver bestimmt das Portrait einer Person: Cache, dann die Quellen
// in fester Reihenfolge, zuletzt ein Platzhalter-Avatar.
type ImageResolver struct {
	Cache         ImageCache
	Sources       []providers.ImageSource
	Host          ImageHost
	AvatarBaseURL string
	Logger        *zap.Logger
}

// NewImageResolver erstellt einen ImageResolver. host darf nil sein.
func NewImageResolver(cache ImageCache, sources []providers.ImageSource, host ImageHost, avatarBaseURL string, logger *zap.Logger) *ImageResolver {
	return &ImageResolver{
		Cache:         cache,
		Sources:       sources,
		Host:          host,
		AvatarBaseURL: avatarBaseURL,
		Logger:        logger,
	}
}

// Resolve liefert immer eine URL. Auch der Platzhalter wird gecacht,
// damit fehlgeschlagene Suchen innerhalb der TTL nicht wiederholt werden.
func (r *ImageResolver) Resolve(ctx context.Context, personName string) string {
	log := r.Logger.With(zap.String("name", personName))

	cached, ok, err := r.Cache.Get(ctx, personName)
	if err != nil {
		log.Warn("Bild-Cache nicht lesbar", zap.Error(err))
	}
	if ok {
		metrics.ImageCacheHits.Inc()
		return cached
	}
	metrics.ImageCacheMisses.Inc()

	imageURL := r.lookup(ctx, personName, log)
	if imageURL != "" && r.Host != nil {
		hosted, err := r.Host.Host(ctx, personName, imageURL)
		if err != nil {
			log.Warn("Bild-Hosting fehlgeschlagen, nutze Original-URL", zap.Error(err))
		} else {
			imageURL = hosted
		}
	}
	if imageURL == "" {
		imageURL = r.Placeholder(personName)
		if ctx.Err() != nil {
			// Abgebrochene Suche nicht als Ergebnis cachen.
			return imageURL
		}
	}

	if err := r.Cache.Set(ctx, personName, imageURL); err != nil {
		log.Warn("Bild-Cache nicht beschreibbar", zap.Error(err))
	}
	return imageURL
}

func (r *ImageResolver) lookup(ctx context.Context, personName string, log *zap.Logger) string {
	for _, src := range r.Sources {
		if ctx.Err() != nil {
			return ""
		}
		found, err := src.FindImage(ctx, personName)
		if err != nil {
			metrics.ImageLookups.WithLabelValues(src.Name(), "error").Inc()
			log.Warn("Bildquelle fehlgeschlagen", zap.String("source", src.Name()), zap.Error(err))
			continue
		}
		if !strings.HasPrefix(found, "http") {
			metrics.ImageLookups.WithLabelValues(src.Name(), "empty").Inc()
			continue
		}
		metrics.ImageLookups.WithLabelValues(src.Name(), "found").Inc()
		log.Debug("Bild gefunden", zap.String("source", src.Name()), zap.String("url", found))
		return found
	}
	return ""
}

// Placeholder erzeugt die deterministische Avatar-URL zum Namen.
func (r *ImageResolver) Placeholder(personName string) string {
	return r.AvatarBaseURL + "?name=" + url.QueryEscape(strings.TrimSpace(personName)) + "&size=400&background=random"
}
