package voices

// castingPool alternates gender, starting male, so consecutive speakers sound distinct.
var castingPool = [...]string{
	"am_adam",
	"af_bella",
	"bm_george",
	"bf_emma",
	"am_michael",
	"af_heart",
	"bm_lewis",
	"bf_isabella",
	"am_eric",
	"af_nicole",
	"bm_daniel",
	"af_sarah",
}

func CastingPool() []string {
	return castingPool[:]
}

// Caster hands out voices from the casting pool for one script. Voices already
// taken are skipped. Once every pool voice is in use, picks restart at the pool
// start and repeat in pool order.
type Caster struct {
	cursor int
	wraps  int
	used   map[string]bool
}

func NewCaster() *Caster {
	return &Caster{used: make(map[string]bool)}
}

// MarkUsed records a voice taken by an explicit cast entry.
func (c *Caster) MarkUsed(voiceID string) {
	c.used[voiceID] = true
}

func (c *Caster) Next() string {
	n := len(castingPool)
	for i := 0; i < n; i++ {
		id := castingPool[(c.cursor+i)%n]
		if !c.used[id] {
			c.cursor = (c.cursor + i + 1) % n
			c.used[id] = true
			return id
		}
	}
	id := castingPool[c.wraps%n]
	c.wraps++
	return id
}
