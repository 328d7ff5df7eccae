package store

import "newsroom/api/internal/feed"

// LiveItemFromEnriched flattens an enriched item for persistence.
func LiveItemFromEnriched(item feed.EnrichedItem) LiveItem {
	return LiveItem{
		ID:           item.Raw.ID,
		Title:        item.Raw.Title,
		Author:       item.Raw.Author,
		Community:    item.Raw.Community,
		Body:         item.Raw.Body,
		Score:        item.Raw.Score,
		CommentCount: item.Raw.CommentCount,
		CreatedAt:    item.Raw.CreatedAt,
		NSFW:         item.Raw.NSFW,
		Stickied:     item.Raw.Stickied,
		Priority:     item.Priority,
		Quality:      item.Quality,
		Sentiment:    string(item.Sentiment),
		Topics:       item.Topics,
		Enriched:     !item.Defaulted,
		ThreadID:     item.ThreadID,
		IsUpdate:     item.IsUpdate,
		UpdateKind:   string(item.UpdateKind),
	}
}

// EnrichedItem rebuilds the in-memory shape from a stored row.
func (item LiveItem) EnrichedItem() feed.EnrichedItem {
	return feed.EnrichedItem{
		Raw: feed.RawItem{
			ID:           item.ID,
			Title:        item.Title,
			Author:       item.Author,
			Community:    item.Community,
			Body:         item.Body,
			Score:        item.Score,
			CommentCount: item.CommentCount,
			CreatedAt:    item.CreatedAt,
			NSFW:         item.NSFW,
			Stickied:     item.Stickied,
		},
		Priority:   item.Priority,
		Quality:    item.Quality,
		Sentiment:  feed.Sentiment(item.Sentiment),
		Topics:     item.Topics,
		Defaulted:  !item.Enriched,
		ThreadID:   item.ThreadID,
		IsUpdate:   item.IsUpdate,
		UpdateKind: feed.UpdateKind(item.UpdateKind),
	}
}

// StoryRecordFromStory flattens a completed story for persistence.
func StoryRecordFromStory(story feed.CompletedStory) StoryRecord {
	return StoryRecord{
		ID:            story.ID,
		SourceItemID:  story.SourceItemID,
		ThreadID:      story.ThreadID,
		Title:         story.Title,
		Narrative:     story.Narrative,
		Tone:          string(story.Tone),
		PriorityClass: story.PriorityClass,
		Agent:         story.Agent,
		WordCount:     story.WordCount,
		CharCount:     story.CharCount,
		Topics:        story.Topics,
		OriginalBrief: story.OriginalBrief,
		CreatedAt:     story.CreatedAt,
		CompletedAt:   story.CompletedAt,
	}
}

// Story rebuilds the in-memory shape from a stored row.
func (r StoryRecord) Story() feed.CompletedStory {
	return feed.CompletedStory{
		ID:            r.ID,
		SourceItemID:  r.SourceItemID,
		ThreadID:      r.ThreadID,
		Title:         r.Title,
		Narrative:     r.Narrative,
		Tone:          feed.Sentiment(r.Tone),
		PriorityClass: r.PriorityClass,
		Agent:         r.Agent,
		WordCount:     r.WordCount,
		CharCount:     r.CharCount,
		Topics:        r.Topics,
		OriginalBrief: r.OriginalBrief,
		CreatedAt:     r.CreatedAt,
		CompletedAt:   r.CompletedAt,
	}
}
