package classify

// Defaults returns the built-in pattern tables. The store seeds these into
// detection_keywords on first run; after that the database rows win. All
// patterns compile case-insensitively.
func Defaults() []Rule {
	return []Rule{
		// Placeholder slots providers park in a group between events.
		{Kind: KindPlaceholder, Pattern: `\b(no\s+events?|no\s+streams?|coming\s+soon|check\s+back|off\s*air|intermission)\b`},
		{Kind: KindPlaceholder, Pattern: `\b(tba|tbd|to\s+be\s+announced)\b`},
		{Kind: KindPlaceholder, Pattern: `^(ppv|event|game|match|channel|stream|slot)\s*#?\d+$`},
		{Kind: KindPlaceholder, Pattern: `^#?\d+$`},
		{Kind: KindPlaceholder, Pattern: `placeholder`},
		{Kind: KindPlaceholder, Pattern: `^24/7\b`},
		{Kind: KindPlaceholder, Pattern: `^[-=*#.\s]+$`},

		// Combat content that is not a card.
		{Kind: KindCombatExclusion, Pattern: `\bweigh[\s-]?ins?\b`},
		{Kind: KindCombatExclusion, Pattern: `\bpress(er|\s+conference)\b`},
		{Kind: KindCombatExclusion, Pattern: `\bpost[\s-]?fight\b`},
		{Kind: KindCombatExclusion, Pattern: `\b(countdown|embedded|face[\s-]?offs?|media\s+day|open\s+workouts?)\b`},

		// Combat promotions. Value is the promotion label the card matcher
		// reports.
		{Kind: KindCombatKeyword, Pattern: `\bufc\b`, Value: "UFC"},
		{Kind: KindCombatKeyword, Pattern: `\bbellator\b`, Value: "Bellator"},
		{Kind: KindCombatKeyword, Pattern: `\bpfl\b`, Value: "PFL"},
		{Kind: KindCombatKeyword, Pattern: `\bone\s+(fc|championship)\b`, Value: "ONE"},
		{Kind: KindCombatKeyword, Pattern: `\b(bkfc|bare\s+knuckle)\b`, Value: "BKFC"},
		{Kind: KindCombatKeyword, Pattern: `\bksw\b`, Value: "KSW"},
		{Kind: KindCombatKeyword, Pattern: `\boktagon\b`, Value: "Oktagon"},
		{Kind: KindCombatKeyword, Pattern: `\bcage\s+warriors\b`, Value: "Cage Warriors"},
		{Kind: KindCombatKeyword, Pattern: `\bglory\s+(kickboxing|\d)`, Value: "Glory"},
		{Kind: KindCombatKeyword, Pattern: `\b(boxing|fight\s+night\s+boxing|matchroom|top\s+rank|golden\s+boy)\b`, Value: "Boxing"},
		{Kind: KindCombatKeyword, Pattern: `\bwwe\b`, Value: "WWE"},
		{Kind: KindCombatKeyword, Pattern: `\baew\b`, Value: "AEW"},

		// League hints. Value lists league codes; umbrella brands carry
		// several and the matcher tries them in order.
		{Kind: KindLeagueHint, Pattern: `\bnfl\b`, Value: "nfl"},
		{Kind: KindLeagueHint, Pattern: `\bnba\b`, Value: "nba"},
		{Kind: KindLeagueHint, Pattern: `\bwnba\b`, Value: "wnba"},
		{Kind: KindLeagueHint, Pattern: `\bmlb\b`, Value: "mlb"},
		{Kind: KindLeagueHint, Pattern: `\bnhl\b`, Value: "nhl"},
		{Kind: KindLeagueHint, Pattern: `\bmls\b`, Value: "usa.1"},
		{Kind: KindLeagueHint, Pattern: `\b(ncaaf|college\s+football|cfb)\b`, Value: "ncaaf"},
		{Kind: KindLeagueHint, Pattern: `\b(ncaab|college\s+basketball|march\s+madness|cbb)\b`, Value: "ncaab"},
		{Kind: KindLeagueHint, Pattern: `\bncaa\b`, Value: "ncaaf,ncaab"},
		{Kind: KindLeagueHint, Pattern: `\b(epl|premier\s+league)\b`, Value: "eng.1"},
		{Kind: KindLeagueHint, Pattern: `\befl\b`, Value: "eng.2"},
		{Kind: KindLeagueHint, Pattern: `\bla\s?liga\b`, Value: "esp.1"},
		{Kind: KindLeagueHint, Pattern: `\bserie\s+a\b`, Value: "ita.1"},
		{Kind: KindLeagueHint, Pattern: `\bbundesliga\b`, Value: "ger.1"},
		{Kind: KindLeagueHint, Pattern: `\bligue\s*1\b`, Value: "fra.1"},
		{Kind: KindLeagueHint, Pattern: `\beredivisie\b`, Value: "ned.1"},
		{Kind: KindLeagueHint, Pattern: `\bliga\s*mx\b`, Value: "mex.1"},
		{Kind: KindLeagueHint, Pattern: `\b(ucl|champions\s+league)\b`, Value: "uefa.champions"},
		{Kind: KindLeagueHint, Pattern: `\b(uel|europa\s+league)\b`, Value: "uefa.europa"},
		{Kind: KindLeagueHint, Pattern: `\bconference\s+league\b`, Value: "uefa.europa.conf"},
		{Kind: KindLeagueHint, Pattern: `\buefa\b`, Value: "uefa.champions,uefa.europa,uefa.europa.conf"},
		{Kind: KindLeagueHint, Pattern: `\bfa\s+cup\b`, Value: "eng.fa"},
		{Kind: KindLeagueHint, Pattern: `\bcopa\s+libertadores\b`, Value: "conmebol.libertadores"},
		{Kind: KindLeagueHint, Pattern: `\bufc\b`, Value: "ufc"},
		{Kind: KindLeagueHint, Pattern: `\bpfl\b`, Value: "pfl"},
		{Kind: KindLeagueHint, Pattern: `\bbellator\b`, Value: "bellator"},

		// Sport hints for when no league fires.
		{Kind: KindSportHint, Pattern: `\b(soccer|futbol|fc)\b`, Value: "soccer"},
		{Kind: KindSportHint, Pattern: `\b(wwe|aew|wrestlemania|wrestling)\b`, Value: "wrestling"},
		{Kind: KindSportHint, Pattern: `\bbasketball\b`, Value: "basketball"},
		{Kind: KindSportHint, Pattern: `\b(ice\s+)?hockey\b`, Value: "hockey"},
		{Kind: KindSportHint, Pattern: `\bbaseball\b`, Value: "baseball"},
		{Kind: KindSportHint, Pattern: `\b(mma|mixed\s+martial\s+arts)\b`, Value: "mma"},
		{Kind: KindSportHint, Pattern: `\bboxing\b`, Value: "boxing"},
		{Kind: KindSportHint, Pattern: `\btennis\b`, Value: "tennis"},
		{Kind: KindSportHint, Pattern: `\bgolf\b`, Value: "golf"},
		{Kind: KindSportHint, Pattern: `\bcricket\b`, Value: "cricket"},
		{Kind: KindSportHint, Pattern: `\brugby\b`, Value: "rugby"},

		// Card segments. Early prelims must precede prelims: first match wins.
		{Kind: KindCardSegment, Pattern: `\bearly\s+prelims?\b`, Value: "early_prelims"},
		{Kind: KindCardSegment, Pattern: `\bprelims?\b`, Value: "prelims"},
		{Kind: KindCardSegment, Pattern: `\bmain\s+card\b`, Value: "main_card"},
		{Kind: KindCardSegment, Pattern: `\b(full|entire|complete)\s+(card|event)\b`, Value: "combined"},

		// Game separators, tried in order. "vs" before bare "v".
		{Kind: KindSeparator, Pattern: `\s+vs\.?\s+`},
		{Kind: KindSeparator, Pattern: `\s+@\s+`},
		{Kind: KindSeparator, Pattern: `\s+at\s+`},
		{Kind: KindSeparator, Pattern: `\s+v\s+`},
	}
}
