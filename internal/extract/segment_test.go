package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refcheck/refcheck/internal/model"
)

const bracketedSection = `
[1] A. Vaswani, N. Shazeer, and I. Polosukhin. Attention is all you need. In Advances in Neural Information Processing Systems, 2017.
[2] J. Devlin, M.-W. Chang, K. Lee, and K. Toutanova. Deep bidirectional transformers for language understanding. In NAACL, 2019.
[3] T. Brown, B. Mann, and N. Ryder. Language models are few-shot learners. In NeurIPS, 2020.
`

const initialsSection = `A. Vaswani, N. Shazeer, N. Parmar, and I. Polosukhin. Attention is all
you need. In Advances in Neural Information Processing Systems, 2017.
J. Devlin, M. Chang, K. Lee, and K. Toutanova. Pre-training of deep
bidirectional transformers for language understanding, 2019.
T. Brown, B. Mann, and N. Ryder. Language models are few-shot
learners. In Advances in Neural Information Processing Systems, 2020.
A. Radford, J. Wu, and D. Amodei. Language models are unsupervised
multitask learners. OpenAI blog, 2019.
K. He, X. Zhang, S. Ren, and J. Sun. Deep residual learning for image
recognition. In CVPR, 2016.
I. Goodfellow, J. Pouget-Abadie, and M. Mirza. Generative adversarial
nets. In Advances in Neural Information Processing Systems, 2014.
`

func TestSegmentReferences_Bracketed(t *testing.T) {
	segs := SegmentReferences(bracketedSection, DefaultPatterns())
	require.Len(t, segs, 3)
	for i, seg := range segs {
		assert.Equal(t, i, seg.Index)
		assert.Equal(t, model.StrategyBracketed, seg.Strategy)
	}
	assert.True(t, strings.HasPrefix(segs[0].Text, "[1]"))
	assert.True(t, strings.HasPrefix(segs[1].Text, "[2]"))
	assert.Contains(t, segs[0].Text, "Attention is all you need")
	assert.Contains(t, segs[2].Text, "few-shot learners")
}

func TestSegmentReferences_Deterministic(t *testing.T) {
	p := DefaultPatterns()
	a := SegmentReferences(bracketedSection, p)
	b := SegmentReferences(bracketedSection, p)
	assert.Equal(t, a, b)
}

func TestSegmentReferences_Numbered(t *testing.T) {
	section := `
1. First reference title with enough length to keep. Some Journal, 2019.
2. Second reference title with enough length to keep. Some Journal, 2020.
3. Third reference title with enough length to keep. Some Journal, 2021.
`
	segs := SegmentReferences(section, DefaultPatterns())
	require.Len(t, segs, 3)
	assert.Equal(t, model.StrategyNumbered, segs[0].Strategy)
	assert.True(t, strings.HasPrefix(segs[2].Text, "3."))
}

func TestSegmentReferences_AuthorYear(t *testing.T) {
	section := `
Vaswani, A., Shazeer, N., and Polosukhin, I. (2017). Attention is all you need. In NeurIPS.
Devlin, J., Chang, M., Lee, K., and Toutanova, K. (2019). Deep bidirectional transformers for language tasks. In NAACL.
Brown, T., Mann, B., and Ryder, N. (2020). Language models are few-shot learners. In NeurIPS.
`
	segs := SegmentReferences(section, DefaultPatterns())
	require.Len(t, segs, 3)
	assert.Equal(t, model.StrategyAuthorYear, segs[0].Strategy)
	assert.True(t, strings.HasPrefix(segs[1].Text, "Devlin"))
}

func TestSegmentReferences_Initials(t *testing.T) {
	segs := SegmentReferences(initialsSection, DefaultPatterns())
	require.Len(t, segs, 6)
	assert.Equal(t, model.StrategyInitials, segs[0].Strategy)
	assert.True(t, strings.HasPrefix(segs[0].Text, "A. Vaswani"))
	assert.True(t, strings.HasPrefix(segs[3].Text, "A. Radford"))
	assert.Contains(t, segs[5].Text, "Generative adversarial")
}

func TestSegmentReferences_PublisherBlocks(t *testing.T) {
	section := `Smith, John and Doe, Jane. Understanding widget calibration over time. Journal of Widget Science, 4(2):100-110, 2018.

Brown, Alice. Advanced gadget theory and practice in modern systems. Gadget Press, second edition, 2020.`

	segs := SegmentReferences(section, DefaultPatterns())
	require.Len(t, segs, 2)
	assert.Equal(t, model.StrategyPublisher, segs[0].Strategy)
	assert.True(t, strings.HasPrefix(segs[1].Text, "Brown, Alice"))
}

func TestSegmentReferences_WholeSectionFallback(t *testing.T) {
	section := "A single undifferentiated blob of reference text without any recognizable segmentation markers at all."
	segs := SegmentReferences(section, DefaultPatterns())
	require.Len(t, segs, 1)
	assert.Equal(t, model.StrategyWholeSection, segs[0].Strategy)
	assert.Equal(t, 0, segs[0].Index)
	assert.Equal(t, section, segs[0].Text)
}

func TestSegmentReferences_MinSegmentsGate(t *testing.T) {
	section := "[1] The only bracketed reference in this whole section, quite long indeed.\n\nAn unmarked trailing block that is also long enough to count here."

	// One bracketed match falls below the segment minimum, so the blank-line
	// strategy wins instead.
	segs := SegmentReferences(section, DefaultPatterns())
	require.Len(t, segs, 2)
	assert.Equal(t, model.StrategyPublisher, segs[0].Strategy)

	// Lowering min_segments lets the bracketed strategy claim it.
	p, err := CompileOverrides(Overrides{MinSegments: 1})
	require.NoError(t, err)
	segs = SegmentReferences(section, p)
	require.Len(t, segs, 1)
	assert.Equal(t, model.StrategyBracketed, segs[0].Strategy)
}

func TestSegmentReferences_DropsShortSegments(t *testing.T) {
	section := "[1] Real reference with plenty of text to keep around, 2020.\n[2] tiny\n[3] Another real reference with plenty of text to keep, 2021.\n"
	segs := SegmentReferences(section, DefaultPatterns())
	require.Len(t, segs, 2)
	assert.Equal(t, 0, segs[0].Index)
	assert.Equal(t, 1, segs[1].Index)
	assert.True(t, strings.HasPrefix(segs[1].Text, "[3]"))
}

func TestSegmentReferences_DiscardsPreamble(t *testing.T) {
	section := "leftover header line\n[1] First proper reference with sufficient length, 2019.\n[2] Second proper reference with sufficient length, 2020.\n"
	segs := SegmentReferences(section, DefaultPatterns())
	require.Len(t, segs, 2)
	assert.True(t, strings.HasPrefix(segs[0].Text, "[1]"))
	assert.NotContains(t, segs[0].Text, "leftover")
}
