package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/MinnDevelopment/strumbot/locale"
	"github.com/MinnDevelopment/strumbot/notify"
	"github.com/MinnDevelopment/strumbot/telemetry"
	"github.com/MinnDevelopment/strumbot/twitchapi"
)

const (
	embedColor     = 0x6441A4
	clipTitleRunes = 25
	// continuation fields need a non-empty name
	blankFieldName = "\u200b"
)

func channelURL(login string) string { return "https://www.twitch.tv/" + login }

func videoURL(id string) string { return "https://www.twitch.tv/videos/" + id }

func (w *Watcher) goLive(ctx context.Context, s *twitchapi.Stream) error {
	w.observe(s)
	w.startedAt = s.StartedAt
	w.streamID = s.ID
	if w.startedAt.IsZero() {
		w.startedAt = w.clock.Now()
	}
	w.offlineSince = time.Time{}
	w.history = nil

	var (
		game    twitchapi.Game
		videoID string
		thumb   []byte
		g       errgroup.Group
	)
	g.Go(func() error {
		game = w.lookupGame(ctx, s)
		return nil
	})
	g.Go(func() error {
		videoID = w.latestVideoID(ctx)
		return nil
	})
	if w.cfg.Events.Has(notify.EventLive) {
		g.Go(func() error {
			thumb = w.fetchThumbnail(ctx, s.ThumbnailURL)
			return nil
		})
	}
	_ = g.Wait()

	w.current = &Segment{Game: game, Offset: 0, VideoID: videoID}
	w.logger(ctx).Info("channel went live", slog.String("game", game.Name), slog.String("video_id", videoID))
	w.setPresence(ctx, game)
	return w.send(ctx, w.liveNotification(ctx, thumb))
}

func (w *Watcher) baseEmbed() notify.Embed {
	return notify.Embed{
		Title:  w.title,
		URL:    channelURL(w.cfg.Login),
		Author: notify.Author{Name: w.displayName, URL: channelURL(w.cfg.Login)},
		Color:  embedColor,
	}
}

func attach(n *notify.Notification, thumb []byte) {
	if len(thumb) == 0 {
		return
	}
	n.Attachment = &notify.Attachment{Name: notify.ThumbnailName, ContentType: "image/jpeg", Data: thumb}
	n.Embed.Image = "attachment://" + notify.ThumbnailName
}

func (w *Watcher) liveNotification(ctx context.Context, thumb []byte) notify.Notification {
	game := w.current.Game.Name
	e := w.baseEmbed()
	e.Timestamp = w.startedAt
	e.Fields = []notify.Field{
		{Name: w.lang.Text(locale.Playing), Value: game, Inline: true},
		{Name: w.lang.Text(locale.Started), Value: fmt.Sprintf("<t:%d:F>", w.startedAt.Unix()), Inline: true},
	}
	n := notify.Notification{
		Event:   notify.EventLive,
		Channel: w.cfg.Login,
		Content: strings.TrimSpace(w.lang.Text(locale.LiveContent, w.mention(ctx, notify.EventLive), w.displayName, game)),
		Summary: plain(w.lang.Text(locale.LiveContent, "", w.displayName, game)) + " " + channelURL(w.cfg.Login),
		Embed:   e,
		VideoID: w.current.VideoID,
	}
	attach(&n, thumb)
	return n
}

func (w *Watcher) updateNotification(ctx context.Context, thumb []byte) notify.Notification {
	seg := w.current
	e := w.baseEmbed()
	e.Timestamp = w.clock.Now()
	e.Fields = []notify.Field{{Name: w.lang.Text(locale.Playing), Value: seg.Game.Name, Inline: true}}
	if seg.VideoID != "" {
		ts := timestamp(seg.Offset)
		link := fmt.Sprintf("[%s](%s?t=%s)", ts, videoURL(seg.VideoID), ts)
		e.Description = w.lang.Text(locale.WatchFrom, link)
	}
	n := notify.Notification{
		Event:   notify.EventUpdate,
		Channel: w.cfg.Login,
		Content: strings.TrimSpace(w.lang.Text(locale.UpdateContent, w.mention(ctx, notify.EventUpdate), w.displayName, seg.Game.Name)),
		Summary: plain(w.lang.Text(locale.UpdateContent, "", w.displayName, seg.Game.Name)) + " " + channelURL(w.cfg.Login),
		Embed:   e,
		VideoID: seg.VideoID,
	}
	attach(&n, thumb)
	return n
}

func (w *Watcher) vodNotification(ctx context.Context, duration time.Duration) notify.Notification {
	video, found := w.resolveVideo(ctx)

	var (
		clips []twitchapi.Clip
		thumb []byte
		g     errgroup.Group
	)
	if w.cfg.TopClips > 0 {
		g.Go(func() error {
			clips = w.topClips(ctx)
			return nil
		})
	}
	if found {
		g.Go(func() error {
			thumb = w.fetchThumbnail(ctx, video.ThumbnailURL)
			return nil
		})
	}
	_ = g.Wait()

	e := notify.Embed{
		Title:     w.lang.Text(locale.VideoRemoved),
		Author:    notify.Author{Name: w.displayName, URL: channelURL(w.cfg.Login)},
		Color:     embedColor,
		Timestamp: w.offlineSince,
	}
	if found {
		e.Title = video.Title
		e.URL = videoURL(video.ID)
	}
	var stamps, tail []notify.Field
	for i, chunk := range splitFields(w.timestampLines(video.ID), notify.FieldValueLimit) {
		name := blankFieldName
		if i == 0 {
			name = w.lang.Text(locale.Timestamps)
		}
		stamps = append(stamps, notify.Field{Name: name, Value: chunk})
	}
	if len(clips) > 0 {
		if chunks := splitFields(w.clipLines(clips), notify.FieldValueLimit); len(chunks) > 0 {
			tail = append(tail, notify.Field{Name: w.lang.Text(locale.TopClips), Value: chunks[0]})
		}
	}
	e.Fields = fitFields(e, stamps, tail)

	n := notify.Notification{
		Event:   notify.EventVOD,
		Channel: w.cfg.Login,
		Content: strings.TrimSpace(w.lang.Text(locale.VodContent, w.mention(ctx, notify.EventVOD), w.displayName, clock(duration))),
		Summary: plain(w.lang.Text(locale.VodContent, "", w.displayName, clock(duration))),
		Embed:   e,
		VideoID: video.ID,
	}
	if found {
		n.Summary += " " + videoURL(video.ID)
	}
	attach(&n, thumb)
	return n
}

// resolveVideo finds the archived broadcast for the closed session. Segments
// without a video id are backfilled with the session's archive, then the distinct
// ids are tried newest first since the streamer may have deleted the newest
// one mid-stream.
func (w *Watcher) resolveVideo(ctx context.Context) (twitchapi.Video, bool) {
	missing := false
	for _, seg := range w.history {
		if seg.VideoID == "" {
			missing = true
			break
		}
	}
	if missing {
		if id := w.latestVideoID(ctx); id != "" {
			for i := range w.history {
				if w.history[i].VideoID == "" {
					w.history[i].VideoID = id
				}
			}
		}
	}

	seen := make(map[string]struct{}, len(w.history))
	for i := len(w.history) - 1; i >= 0; i-- {
		id := w.history[i].VideoID
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		v, err := w.api.GetVideo(ctx, id)
		if err == nil {
			if v.ID == "" {
				v.ID = id
			}
			return v, true
		}
		if !twitchapi.IsNotFound(err) {
			telemetry.CountEnrichmentFailure("video")
			w.logger(ctx).Warn("video lookup failed", slog.String("video_id", id), slog.Any("err", err))
		}
	}
	return twitchapi.Video{}, false
}

func (w *Watcher) timestampLines(videoID string) []string {
	lines := make([]string, 0, len(w.history))
	for _, seg := range w.history {
		ts := timestamp(seg.Offset)
		if videoID == "" {
			lines = append(lines, fmt.Sprintf("%s  %s", ts, seg.Game.Name))
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s](<%s?t=%s>)  %s", ts, videoURL(videoID), ts, seg.Game.Name))
	}
	return lines
}

func (w *Watcher) topClips(ctx context.Context) []twitchapi.Clip {
	clips, err := w.api.GetTopClips(ctx, w.channelID, w.startedAt, w.cfg.TopClips)
	if err != nil {
		telemetry.CountEnrichmentFailure("clips")
		w.logger(ctx).Warn("top clips lookup failed", slog.Any("err", err))
		return nil
	}
	if len(clips) > w.cfg.TopClips {
		clips = clips[:w.cfg.TopClips]
	}
	return clips
}

func (w *Watcher) clipLines(clips []twitchapi.Clip) []string {
	views := w.lang.Text(locale.Views)
	lines := make([]string, 0, len(clips))
	for i, c := range clips {
		lines = append(lines, fmt.Sprintf("%d. [%s](%s) — %d %s", i+1, ellipsize(c.Title, clipTitleRunes), c.URL, c.ViewCount, views))
	}
	return lines
}

func runes(s string) int { return utf8.RuneCountInString(s) }

// fitFields returns stamps followed by tail, dropping trailing stamps and
// cutting the last kept one so e stays within Discord's embed limits. tail
// fields are always kept.
func fitFields(e notify.Embed, stamps, tail []notify.Field) []notify.Field {
	used := runes(e.Title) + runes(e.Description) + runes(e.Author.Name) + runes(e.Footer)
	for _, f := range tail {
		used += runes(f.Name) + runes(f.Value)
	}
	room := notify.EmbedFieldLimit - len(tail)

	out := make([]notify.Field, 0, len(stamps)+len(tail))
	for _, f := range stamps {
		if len(out) == room {
			break
		}
		n := runes(f.Name) + runes(f.Value)
		if used+n > notify.EmbedTotalLimit {
			if left := notify.EmbedTotalLimit - used - runes(f.Name); left > 1 {
				f.Value = cutLines(f.Value, left)
				out = append(out, f)
			}
			break
		}
		out = append(out, f)
		used += n
	}
	return append(out, tail...)
}
