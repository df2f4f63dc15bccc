package db

const (
	tableJob            = "job"
	tableGeneratedSkill = "generated_skill"
	tablePublishedPage  = "published_page"
)

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- JOB TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS query ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS skill_id ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON job TYPE string
        ASSERT $value IN ["queued", "reasoning", "generating", "completed", "failed"];
    DEFINE FIELD IF NOT EXISTS reasoning ON job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS html_report ON job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS report_title ON job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS error ON job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS user_id ON job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON job TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS job_user ON job FIELDS user_id, created_at;

    -- ==========================================================================
    -- GENERATED SKILL TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS generated_skill SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS user_id ON generated_skill TYPE string;
    DEFINE FIELD IF NOT EXISTS name ON generated_skill TYPE string;
    DEFINE FIELD IF NOT EXISTS description ON generated_skill TYPE string;
    DEFINE FIELD IF NOT EXISTS input_spec ON generated_skill TYPE string;
    DEFINE FIELD IF NOT EXISTS output_spec ON generated_skill TYPE string;
    DEFINE FIELD IF NOT EXISTS chat_context ON generated_skill TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS status ON generated_skill TYPE string
        ASSERT $value IN ["pending", "generating", "ready", "failed"];
    DEFINE FIELD IF NOT EXISTS content ON generated_skill TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS refs ON generated_skill TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS error ON generated_skill TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS share_status ON generated_skill TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON generated_skill TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON generated_skill TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS generated_skill_user ON generated_skill FIELDS user_id;
    DEFINE INDEX IF NOT EXISTS generated_skill_share ON generated_skill FIELDS share_status;

    -- ==========================================================================
    -- PUBLISHED PAGE TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS published_page SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS job_id ON published_page TYPE string;
    DEFINE FIELD IF NOT EXISTS user_id ON published_page TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS title ON published_page TYPE string;
    DEFINE FIELD IF NOT EXISTS html ON published_page TYPE string;
    DEFINE FIELD IF NOT EXISTS skill_id ON published_page TYPE string;
    DEFINE FIELD IF NOT EXISTS query ON published_page TYPE string;
    DEFINE FIELD IF NOT EXISTS created_at ON published_page TYPE datetime DEFAULT time::now();
`
